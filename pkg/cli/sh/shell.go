package sh

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/pruspi.go/pkg/pru"
	"github.com/robotalks/pruspi.go/pkg/spi"
)

// Controller is the API shared by spi.Master and spi.Slave.
type Controller interface {
	Role() spi.Role
	Init() error
	Start(spi.Callback) error
	Stop()
	Wait() error
	Close() error
	Data() ([]byte, error)
	Received() ([]byte, error)
	WaitForTransmissionToComplete(time.Duration) bool
	Status() spi.Status
}

// Shell provides ishell backed interactive shell driving a master and a
// slave controller.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	Timeout     time.Duration

	Shell  *ishell.Shell
	Master *spi.Master
	Slave  *spi.Slave
	// Current is the controller commands apply to.
	Current Controller
}

// StatusView is the printable form of spi.Status.
type StatusView struct {
	Role        string `json:"role"`
	State       string `json:"state"`
	InProgress  bool   `json:"in-progress"`
	BufferIndex int    `json:"buffer-index"`
	LastLength  uint32 `json:"last-length"`
	Transfers   uint64 `json:"transfers"`
	Error       string `json:"error,omitempty"`
}

const (
	shellKey         = "$shell"
	unselectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool
	timeout    = time.Second

	// commands
	commands = []*ishell.Cmd{
		&UseCmd,
		&InitCmd,
		&StartCmd,
		&FillCmd,
		&SendCmd,
		&RecvCmd,
		&WaitCmd,
		&StatusCmd,
		&ReceivedCmd,
		&StopCmd,
		&ExchangeCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.DurationVar(&timeout, "timeout", timeout, "Timeout waiting for a transfer.")
}

// New creates a new shell with controllers from the configs.
func New(pruConf *pru.Config, spiConf *spi.Config) *Shell {
	masterOpener, slaveOpener := pruConf.Openers()
	masterConf, slaveConf := *spiConf, *spiConf
	masterConf.Opener, slaveConf.Opener = masterOpener, slaveOpener
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Timeout:     timeout,

		Shell:  ishell.New(),
		Master: spi.NewMaster(masterConf),
		Slave:  spi.NewSlave(slaveConf),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unselectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeSelected wraps command func requires a selected controller.
func MustBeSelected(fn func(c *ishell.Context, ctl Controller)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		s := ShellFrom(c)
		if s.Current == nil {
			c.Err(fmt.Errorf("no controller selected, use master or slave"))
			return
		}
		fn(c, s.Current)
	}
}

// Select makes the controller of role current.
func (s *Shell) Select(role string) error {
	switch role {
	case spi.RoleMaster.String():
		s.Current = s.Master
	case spi.RoleSlave.String():
		s.Current = s.Slave
	default:
		return fmt.Errorf("unknown role %q", role)
	}
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", role))
	return nil
}

// Ensure initializes and starts ctl unless already running.
func (s *Shell) Ensure(ctl Controller) error {
	if err := ctl.Init(); err != nil {
		return err
	}
	if err := ctl.Start(nil); err != nil && !errors.Is(err, spi.ErrAlreadyStarted) {
		return err
	}
	return nil
}

// Close closes both controllers.
func (s *Shell) Close() error {
	return errors.Join(s.Master.Close(), s.Slave.Close())
}

// Print prints v in JSON or with fmt.
func (s *Shell) Print(c *ishell.Context, v interface{}) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Printf("%+v\n", v)
}

// NewStatusView converts a status for display.
func NewStatusView(st spi.Status) StatusView {
	v := StatusView{
		Role:        st.Role.String(),
		State:       st.State.String(),
		InProgress:  st.InProgress,
		BufferIndex: st.BufferIndex,
		LastLength:  st.LastLength,
		Transfers:   st.Transfers,
	}
	if st.Err != nil {
		v.Error = st.Err.Error()
	}
	return v
}

// ParsePayload parses a single length, which produces counting bytes, or
// a list of two or more byte values. Payloads never exceed a buffer.
func ParsePayload(args []string) ([]byte, error) {
	switch len(args) {
	case 0:
		return nil, fmt.Errorf("length or bytes expected")
	case 1:
		n, err := strconv.ParseUint(args[0], 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid length %q: %w", args[0], err)
		}
		if n > pru.BufferSize {
			return nil, &spi.LengthError{Length: uint32(n), Capacity: pru.BufferSize}
		}
		return counting(int(n)), nil
	}
	if len(args) > pru.BufferSize {
		return nil, &spi.LengthError{Length: uint32(len(args)), Capacity: pru.BufferSize}
	}
	data := make([]byte, 0, len(args))
	for _, arg := range args {
		val, err := strconv.ParseUint(arg, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid byte %q: %w", arg, err)
		}
		data = append(data, byte(val))
	}
	return data, nil
}

func counting(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	return data
}

func fill(ctl Controller, payload []byte) error {
	buf, err := ctl.Data()
	if err != nil {
		return err
	}
	if len(payload) > len(buf) {
		return &spi.LengthError{Length: uint32(len(payload)), Capacity: uint32(len(buf))}
	}
	copy(buf, payload)
	return nil
}

func parseLength(c *ishell.Context) (uint32, bool) {
	if len(c.Args) != 1 {
		c.Err(fmt.Errorf("length expected"))
		return 0, false
	}
	n, err := strconv.ParseUint(c.Args[0], 0, 32)
	if err != nil {
		c.Err(fmt.Errorf("invalid length %q: %w", c.Args[0], err))
		return 0, false
	}
	return uint32(n), true
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	defer func() {
		if err := s.Close(); err != nil {
			log.Println(err)
		}
	}()
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Println(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Println("command expected")
}

var (
	// UseCmd selects the current controller.
	UseCmd = ishell.Cmd{
		Name:    "use",
		Aliases: []string{"u"},
		Help:    "master|slave",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("role expected"))
				return
			}
			if err := ShellFrom(c).Select(c.Args[0]); err != nil {
				c.Err(err)
			}
		},
	}

	// InitCmd acquires the transport.
	InitCmd = ishell.Cmd{
		Name: "init",
		Help: "",
		Func: MustBeSelected(func(c *ishell.Context, ctl Controller) {
			if err := ctl.Init(); err != nil {
				c.Err(err)
			}
		}),
	}

	// StartCmd starts the loop.
	StartCmd = ishell.Cmd{
		Name: "start",
		Help: "",
		Func: MustBeSelected(func(c *ishell.Context, ctl Controller) {
			if err := ctl.Start(nil); err != nil {
				c.Err(err)
			}
		}),
	}

	// FillCmd writes the producer buffer.
	FillCmd = ishell.Cmd{
		Name:    "fill",
		Aliases: []string{"f"},
		Help:    "LENGTH | BYTE...",
		Func: MustBeSelected(func(c *ishell.Context, ctl Controller) {
			payload, err := ParsePayload(c.Args)
			if err == nil {
				err = fill(ctl, payload)
			}
			if err != nil {
				c.Err(err)
			}
		}),
	}

	// SendCmd fills the producer buffer and starts a master transfer.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "LENGTH | BYTE...",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			payload, err := ParsePayload(c.Args)
			if err == nil {
				err = fill(s.Master, payload)
			}
			if err == nil {
				err = s.Master.StartTransmission(uint32(len(payload)))
			}
			if err != nil {
				c.Err(err)
			}
		},
	}

	// RecvCmd arms the slave.
	RecvCmd = ishell.Cmd{
		Name:    "recv",
		Aliases: []string{"r"},
		Help:    "MAX-LENGTH",
		Func: func(c *ishell.Context) {
			n, ok := parseLength(c)
			if !ok {
				return
			}
			if err := ShellFrom(c).Slave.EnableReceive(n); err != nil {
				c.Err(err)
			}
		},
	}

	// WaitCmd waits for the current transfer.
	WaitCmd = ishell.Cmd{
		Name:    "wait",
		Aliases: []string{"w"},
		Help:    "",
		Func: MustBeSelected(func(c *ishell.Context, ctl Controller) {
			if !ctl.WaitForTransmissionToComplete(ShellFrom(c).Timeout) {
				c.Err(fmt.Errorf("transfer not completed"))
				return
			}
			c.Println("OK")
		}),
	}

	// StatusCmd prints status of both controllers.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			views := []StatusView{NewStatusView(s.Master.Status()), NewStatusView(s.Slave.Status())}
			if err := s.Slave.LastTransmissionErr(); err != nil {
				views[1].Error = err.Error()
			}
			if s.OutputJSON {
				s.Print(c, views)
				return
			}
			for _, v := range views {
				s.Print(c, v)
			}
		},
	}

	// ReceivedCmd dumps the consumer buffer.
	ReceivedCmd = ishell.Cmd{
		Name:    "received",
		Aliases: []string{"rx"},
		Help:    "",
		Func: MustBeSelected(func(c *ishell.Context, ctl Controller) {
			data, err := ctl.Received()
			if err != nil {
				c.Err(err)
				return
			}
			s := ShellFrom(c)
			if s.OutputJSON {
				s.Print(c, data)
				return
			}
			c.Print(hex.Dump(data))
		}),
	}

	// StopCmd stops the loop and waits for it.
	StopCmd = ishell.Cmd{
		Name: "stop",
		Help: "",
		Func: MustBeSelected(func(c *ishell.Context, ctl Controller) {
			ctl.Stop()
			if err := ctl.Wait(); err != nil {
				c.Err(err)
			}
		}),
	}

	// ExchangeCmd runs one full duplex transfer between master and slave.
	ExchangeCmd = ishell.Cmd{
		Name:    "exchange",
		Aliases: []string{"x"},
		Help:    "LENGTH | BYTE...",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			payload, err := ParsePayload(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			n, err := s.Exchange(payload)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("exchanged %d bytes\n", n)
		},
	}
)

// Exchange arms the slave, sends payload from the master and waits for
// both sides to complete.
func (s *Shell) Exchange(payload []byte) (uint32, error) {
	for _, ctl := range []Controller{s.Slave, s.Master} {
		if err := s.Ensure(ctl); err != nil {
			return 0, err
		}
	}
	if err := fill(s.Master, payload); err != nil {
		return 0, err
	}
	if err := s.Slave.EnableReceive(s.Master.Capacity()); err != nil {
		return 0, err
	}
	if err := s.Master.StartTransmission(uint32(len(payload))); err != nil {
		return 0, err
	}
	for _, ctl := range []Controller{s.Master, s.Slave} {
		if !ctl.WaitForTransmissionToComplete(s.Timeout) {
			return 0, fmt.Errorf("%s transfer not completed", ctl.Role())
		}
	}
	return s.Slave.LastTransmissionLength(), nil
}

// Main is a helper to provide a single call in main.
func Main() {
	pru.SetupFlags()
	spi.SetupFlags()
	flag.Parse()
	New(pru.Default(), spi.Default()).Run(flag.Args()...)
}
