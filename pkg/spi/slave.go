package spi

// Slave receives transfers clocked by a master. The producer buffer holds
// the reply shifted out during the next transfer; Received returns what
// the master sent in the last one.
type Slave struct {
	controller
}

// NewSlave creates a slave controller.
func NewSlave(config Config) *Slave {
	s := &Slave{}
	s.setup(RoleSlave, config)
	s.checkCompletion = checkOverflow
	return s
}

// EnableReceive arms the slave for a single transfer of at most maxLength
// bytes. A longer transfer is still completed and delivered in full, and
// reported by LastTransmissionErr.
func (s *Slave) EnableReceive(maxLength uint32) error {
	return s.begin(maxLength, maxLength, maxLength)
}

// LastTransmissionErr returns the *OverflowError of the last completed
// reception, or nil.
func (s *Slave) LastTransmissionErr() error {
	return s.lastTransmissionErr()
}

func checkOverflow(n, maxLength uint32) error {
	if n > maxLength {
		return &OverflowError{Received: n, Max: maxLength}
	}
	return nil
}
