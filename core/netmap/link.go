package netmap

// LinkInfo describes the kernel network interface behind a session.
type LinkInfo struct {
	Name         string
	Index        int
	MTU          int
	HardwareAddr string
	OperState    string
	NumTxQueues  int
	NumRxQueues  int
}
