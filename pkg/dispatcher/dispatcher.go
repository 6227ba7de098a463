package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/device-manager/pkg/conversation"
	"github.com/morezero/device-manager/pkg/descriptor"
	"github.com/morezero/device-manager/pkg/events"
	"github.com/morezero/device-manager/pkg/messaging"
	"github.com/morezero/device-manager/pkg/metrics"
	"github.com/morezero/device-manager/pkg/registry"
	"github.com/morezero/device-manager/pkg/semver"
)

const logPrefix = "dispatcher:dispatch"

// ErrNoCommunicationState is returned by SendCommandToGUI when no communication state is
// configured.
var ErrNoCommunicationState = errors.New("communication state not configured")

// Config holds the instance-level settings of a Dispatcher.
type Config struct {
	// APIVersion is announced when the provider does not set one.
	APIVersion string
	// CommunicationStateID is the state GUI commands are written to. Empty disables push.
	CommunicationStateID string
	// InteractionTimeout bounds the wait for each follow-up of an interactive command.
	InteractionTimeout time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		APIVersion:           "v2",
		CommunicationStateID: "info.deviceManager",
		InteractionTimeout:   5 * time.Minute,
	}
}

// Dispatcher routes "dm:" commands. It owns the registry and the pending conversations of
// one backend instance.
type Dispatcher struct {
	provider  Provider
	registry  *registry.Registry
	messenger messaging.Messenger
	pending   *conversation.Pending
	publisher events.StatePublisher
	metrics   *metrics.Metrics
	config    Config
	onFatal   func(error)

	wg sync.WaitGroup
}

// NewDispatcherParams holds the parameters for creating a Dispatcher.
type NewDispatcherParams struct {
	Provider  Provider
	Messenger messaging.Messenger
	// Registry and Pending are created when nil.
	Registry  *registry.Registry
	Pending   *conversation.Pending
	Publisher events.StatePublisher
	Metrics   *metrics.Metrics
	Config    Config
	// OnFatal is called when the provider breaks an id uniqueness rule. The server stops.
	OnFatal func(error)
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(params NewDispatcherParams) *Dispatcher {
	d := &Dispatcher{
		provider:  params.Provider,
		registry:  params.Registry,
		messenger: params.Messenger,
		pending:   params.Pending,
		publisher: params.Publisher,
		metrics:   params.Metrics,
		config:    params.Config,
		onFatal:   params.OnFatal,
	}
	if d.registry == nil {
		d.registry = registry.NewRegistry()
	}
	if d.pending == nil {
		d.pending = conversation.NewPending()
	}
	if d.publisher == nil {
		d.publisher = &events.NoOpPublisher{}
	}
	return d
}

// Registry returns the descriptor registry.
func (d *Dispatcher) Registry() *registry.Registry { return d.registry }

// Pending returns the pending conversation index.
func (d *Dispatcher) Pending() *conversation.Pending { return d.pending }

// Wait blocks until every running interactive command has sent its result.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Handle routes msg and reports whether it belonged to the device manager. Interactive
// commands run in their own goroutine so their follow-ups can be handled meanwhile.
func (d *Dispatcher) Handle(ctx context.Context, msg *messaging.Message) bool {
	verb := msg.Verb()
	if verb == "" {
		return false
	}
	slog.Debug(fmt.Sprintf("%s - verb=%s id=%s from=%s", logPrefix, verb, msg.ID, msg.From))

	switch verb {
	case VerbInstanceInfo:
		d.handleInstanceInfo(ctx, msg)
	case VerbListDevices:
		d.handleListDevices(ctx, msg)
	case VerbDeviceDetails:
		d.handleDeviceDetails(ctx, msg)
	case VerbInstanceAction, VerbDeviceAction, VerbDeviceControl, VerbDeviceControlState:
		d.startInteractive(ctx, verb, msg)
	case VerbActionProgress:
		d.handleActionProgress(ctx, msg)
	default:
		slog.Warn(fmt.Sprintf("%s - unknown command %s ignored", logPrefix, msg.Command))
		d.metrics.Command(verb, metrics.OutcomeIgnored)
	}
	return true
}

// reply answers msg directly.
func (d *Dispatcher) reply(ctx context.Context, msg *messaging.Message, payload interface{}) {
	if err := d.messenger.SendTo(ctx, msg.From, msg.Command, payload, msg.Callback); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to reply to %s: %v", logPrefix, msg.Command, err))
	}
}

// replyError answers msg with a structured error.
func (d *Dispatcher) replyError(ctx context.Context, verb string, msg *messaging.Message, code int, format string, args ...interface{}) {
	detail := descriptor.NewError(code, format, args...)
	slog.Warn(fmt.Sprintf("%s - %s: %s", logPrefix, verb, detail.Message))
	d.reply(ctx, msg, descriptor.ErrorResponse{Error: detail})
	d.metrics.Command(verb, metrics.OutcomeError)
}

// fatal reports a uniqueness violation. Nothing is sent for the command.
func (d *Dispatcher) fatal(verb string, err error) {
	slog.Error(fmt.Sprintf("%s - %s aborted: %v", logPrefix, verb, err))
	d.metrics.Command(verb, metrics.OutcomeError)
	if d.onFatal != nil {
		d.onFatal(err)
	}
}

func isDuplicate(err error) bool {
	var dupID *descriptor.DuplicateIDError
	var dupDevice *registry.DuplicateDeviceIDError
	return errors.As(err, &dupID) || errors.As(err, &dupDevice)
}

func (d *Dispatcher) handleInstanceInfo(ctx context.Context, msg *messaging.Message) {
	info, err := d.instanceInfo(ctx)
	if err != nil {
		d.replyError(ctx, VerbInstanceInfo, msg, descriptor.CodeHandlerFailed, "getInstanceInfo failed: %v", err)
		return
	}
	if err := semver.CheckAPIVersion(info.APIVersion); err != nil {
		d.replyError(ctx, VerbInstanceInfo, msg, descriptor.CodeInternal, "%v", err)
		return
	}

	wire, err := descriptor.ConvertInstance(info)
	if err != nil {
		d.fatal(VerbInstanceInfo, err)
		return
	}
	d.registry.RecordInstanceInfo(info)

	d.reply(ctx, msg, wire)
	d.metrics.Command(VerbInstanceInfo, metrics.OutcomeOK)
}

func (d *Dispatcher) handleListDevices(ctx context.Context, msg *messaging.Message) {
	list, err := d.provider.ListDevices(ctx)
	if err != nil {
		d.replyError(ctx, VerbListDevices, msg, descriptor.CodeHandlerFailed, "listDevices failed: %v", err)
		return
	}

	wire, err := descriptor.ConvertDevices(list)
	if err != nil {
		d.fatal(VerbListDevices, err)
		return
	}
	if err := d.registry.RecordDeviceList(list); err != nil {
		if isDuplicate(err) {
			d.fatal(VerbListDevices, err)
			return
		}
		d.replyError(ctx, VerbListDevices, msg, descriptor.CodeInternal, "%v", err)
		return
	}

	d.reply(ctx, msg, wire)

	// The second payload carries the full mapping keyed by device id.
	raw := make(map[string]descriptor.DeviceInfo, len(list))
	for _, dev := range list {
		raw[dev.ID] = dev
	}
	d.reply(ctx, msg, raw)
	d.metrics.Command(VerbListDevices, metrics.OutcomeOK)
}

func (d *Dispatcher) handleDeviceDetails(ctx context.Context, msg *messaging.Message) {
	var deviceID string
	if err := decode(VerbDeviceDetails, msg.Message, &deviceID); err != nil {
		d.replyError(ctx, VerbDeviceDetails, msg, descriptor.CodeInvalidPayload, "%v", err)
		return
	}

	details, err := d.deviceDetails(ctx, deviceID)
	if err != nil {
		d.replyError(ctx, VerbDeviceDetails, msg, descriptor.CodeHandlerFailed, "getDeviceDetails %s failed: %v", deviceID, err)
		return
	}
	d.reply(ctx, msg, details)
	d.metrics.Command(VerbDeviceDetails, metrics.OutcomeOK)
}

func (d *Dispatcher) handleActionProgress(ctx context.Context, msg *messaging.Message) {
	var req ProgressRequest
	if err := decode(VerbActionProgress, msg.Message, &req); err != nil {
		if msg.IsPlainString() {
			slog.Debug(fmt.Sprintf("%s - plain string follow-up ignored", logPrefix))
			return
		}
		d.replyError(ctx, VerbActionProgress, msg, descriptor.CodeInvalidPayload, "%v", err)
		return
	}

	mc, ok := d.pending.Get(req.Origin.String())
	if !ok {
		d.replyError(ctx, VerbActionProgress, msg, descriptor.CodeUnknownOrigin, "Unknown action origin")
		return
	}
	if !mc.HandleProgress(msg) {
		slog.Debug(fmt.Sprintf("%s - follow-up for %s ignored, no prompt waiting", logPrefix, req.Origin))
		d.metrics.Command(VerbActionProgress, metrics.OutcomeIgnored)
		return
	}
	d.metrics.Command(VerbActionProgress, metrics.OutcomeOK)
}

// SendCommandToGUI writes cmd into the communication state.
func (d *Dispatcher) SendCommandToGUI(ctx context.Context, cmd *events.BackendToGuiCommand) error {
	if d.config.CommunicationStateID == "" {
		return ErrNoCommunicationState
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("%s - failed to encode GUI command: %w", logPrefix, err)
	}
	return d.publisher.PublishState(ctx, &events.StateChange{
		ID:  d.config.CommunicationStateID,
		Val: string(data),
		Ack: true,
	})
}
