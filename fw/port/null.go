package port

// NullTransport is a transport that drops all frames and never receives.
type NullTransport struct {
	transportBase
	close chan struct{}
}

// MakeNullTransport makes a NullTransport.
func MakeNullTransport() *NullTransport {
	t := &NullTransport{close: make(chan struct{})}
	t.running.Store(true)
	return t
}

func (t *NullTransport) String() string {
	return "null-transport"
}

func (t *NullTransport) TargetReceive([]byte) (int, error) {
	<-t.close
	return 0, ErrClosed
}

func (t *NullTransport) ControllerSend(_ uint8, frame []byte) error {
	if !t.running.Load() {
		return ErrClosed
	}
	t.countOut(len(frame))
	return nil
}

func (t *NullTransport) Close() error {
	if t.running.Swap(false) {
		close(t.close)
	}
	return nil
}
