package bicbridge

import (
	"fmt"
	"log"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"os/signal"
	"time"

	"github.com/davecgh/go-spew/spew"
)

// EngineControl is the RPC-exposed sub-server wrapping an Engine, mirroring
// the teacher's SourceControl: a thin method-per-operation surface over
// net/rpc, with method dispatch and request parsing handled by the
// standard library (spec §1: "the RPC surface itself" is out of scope,
// only the data contracts and streaming semantics are specified here).
//
// Grounded on rpc_server.go's SourceControl/RunRPCServer.
type EngineControl struct {
	engine *Engine
}

// NewEngineControl wraps engine for RPC registration.
func NewEngineControl(engine *Engine) *EngineControl {
	return &EngineControl{engine: engine}
}

// Arm/DisarmStream<Kind> operations are intentionally not exposed here:
// their writer and publisher handles are Go interfaces/socket objects,
// not RPC-serializable values, so stream wiring is done by whatever
// process constructs the Engine rather than over this control surface
// (spec §1: "the RPC surface itself" is out of scope; only the data
// contracts and streaming semantics are specified).

// ClosedLoopArgs is the RPC argument shape for EnableClosedLoop.
type ClosedLoopArgs struct {
	Enable              bool
	SensingChannel      int
	B, A                [5]float64
	AmplitudeThreshold  float64
	InitialTriggerPhase float64
	TargetPhase         float64
}

// EnableClosedLoop arms or disarms the phase-locked stim controller.
func (c *EngineControl) EnableClosedLoop(args *ClosedLoopArgs, reply *bool) error {
	log.Printf("EnableClosedLoop: %v", spew.Sdump(args))
	err := c.engine.EnableClosedLoop(args.Enable, args.SensingChannel, args.B, args.A,
		args.AmplitudeThreshold, args.InitialTriggerPhase, args.TargetPhase)
	*reply = err == nil
	return err
}

// OpenLoopArgs is the RPC argument shape for EnableOpenLoop.
type OpenLoopArgs struct {
	Enable                 bool
	WatchdogIntervalMillis int
}

// EnableOpenLoop arms or disarms the open-loop watchdog.
func (c *EngineControl) EnableOpenLoop(args *OpenLoopArgs, reply *bool) error {
	log.Printf("EnableOpenLoop: %v", spew.Sdump(args))
	err := c.engine.EnableOpenLoop(args.Enable, time.Duration(args.WatchdogIntervalMillis)*time.Millisecond)
	*reply = err == nil
	return err
}

// IsTriggeringStimulation reports whether a stim driver is armed.
func (c *EngineControl) IsTriggeringStimulation(_ *struct{}, reply *bool) error {
	*reply = c.engine.IsTriggeringStimulation()
	return nil
}

// SetComment appends a free-form note to the comment log.
func (c *EngineControl) SetComment(comment *string, reply *bool) error {
	err := c.engine.SetComment(*comment)
	*reply = err == nil
	return err
}

// RunRPCServer registers an EngineControl and serves JSON-RPC over a plain
// TCP listener, one codec per connection, requests handled synchronously
// per connection (so EngineControl itself needs no extra lock beyond the
// Engine's own). Blocks until SIGINT if block is true.
//
// Grounded on rpc_server.go's RunRPCServer.
func RunRPCServer(control *EngineControl, port int, block bool) error {
	server := rpc.NewServer()
	if err := server.Register(control); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("bicbridge: listen: %w", err)
	}

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				log.Printf("accept error: %v", err)
				return
			}
			log.Printf("new connection established")
			go func() {
				codec := jsonrpc.NewServerCodec(conn)
				for {
					if err := server.ServeRequest(codec); err != nil {
						log.Printf("server stopped: %v", err)
						return
					}
				}
			}()
		}
	}()

	if block {
		interruptCatcher := make(chan os.Signal, 1)
		signal.Notify(interruptCatcher, os.Interrupt)
		<-interruptCatcher
		control.engine.Shutdown()
	}
	return nil
}
