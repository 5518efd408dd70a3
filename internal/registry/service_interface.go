package registry

// Service is the interface for every long-running part of the simulator.
type Service interface {
	Start() error
	Stop() error
}
