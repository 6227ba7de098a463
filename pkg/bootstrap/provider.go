package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/morezero/device-manager/pkg/descriptor"
	"github.com/morezero/device-manager/pkg/dispatcher"
	"github.com/morezero/device-manager/pkg/events"
	"github.com/morezero/device-manager/pkg/state"
)

const providerLogPrefix = "bootstrap:provider"

// Action ids served by the catalog.
const (
	ActionRescan   = "rescan"
	ActionIdentify = "identify"
	ActionRename   = "rename"
)

var (
	_ dispatcher.Provider              = (*CatalogProvider)(nil)
	_ dispatcher.InstanceInfoProvider  = (*CatalogProvider)(nil)
	_ dispatcher.DeviceDetailsProvider = (*CatalogProvider)(nil)
)

// identifyStep is the pause between two progress updates of the identify action.
var identifyStep = 250 * time.Millisecond

// CatalogProvider serves a Catalog to the dispatcher. Control values are read from a
// state.Store; writes go through the StatePublisher, which must persist them to the same
// store, so the GUI sees them.
type CatalogProvider struct {
	store       state.Store
	publisher   events.StatePublisher
	statePrefix string
	apiVersion  string
	commStateID string
	reload      func() (*Catalog, error)
	notify      func(ctx context.Context, cmd *events.BackendToGuiCommand) error

	mu      sync.RWMutex
	catalog *Catalog
	names   map[string]string
}

// NewCatalogProviderParams holds the parameters for creating a CatalogProvider.
type NewCatalogProviderParams struct {
	Catalog   *Catalog
	Store     state.Store
	Publisher events.StatePublisher
	// StatePrefix is prepended to the state id of every control.
	StatePrefix          string
	APIVersion           string
	CommunicationStateID string
	// Reload, if set, is used by the rescan action to read the catalog again.
	Reload func() (*Catalog, error)
	// Notify, if set, pushes GUI commands after a rename or rescan.
	Notify func(ctx context.Context, cmd *events.BackendToGuiCommand) error
}

// NewCatalogProvider creates a new CatalogProvider.
func NewCatalogProvider(params NewCatalogProviderParams) *CatalogProvider {
	p := &CatalogProvider{
		store:       params.Store,
		publisher:   params.Publisher,
		statePrefix: params.StatePrefix,
		apiVersion:  params.APIVersion,
		commStateID: params.CommunicationStateID,
		reload:      params.Reload,
		notify:      params.Notify,
		catalog:     params.Catalog,
		names:       make(map[string]string),
	}
	if p.catalog == nil {
		p.catalog = GetDefaultCatalog()
	}
	if p.store == nil {
		p.store = state.NewMemoryStore()
	}
	if p.publisher == nil {
		// Without a transport, writes only reach the store.
		p.publisher = events.NewCallbackPublisher(func(ctx context.Context, c *events.StateChange) error {
			return p.store.Set(ctx, c.ID, c.Val, c.Ack)
		})
	}
	return p
}

// StateID returns the id of the state behind a control.
func (p *CatalogProvider) StateID(deviceID, controlID string) string {
	if p.statePrefix == "" {
		return deviceID + "." + controlID
	}
	return p.statePrefix + "." + deviceID + "." + controlID
}

func (p *CatalogProvider) snapshot() *Catalog {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.catalog
}

func (p *CatalogProvider) displayName(d *CatalogDevice) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if name, ok := p.names[d.ID]; ok {
		return name
	}
	return d.Name
}

func (p *CatalogProvider) push(ctx context.Context, cmd *events.BackendToGuiCommand) {
	if p.notify == nil {
		return
	}
	if err := p.notify(ctx, cmd); err != nil {
		if errors.Is(err, dispatcher.ErrNoCommunicationState) {
			slog.Debug(fmt.Sprintf("%s - %s not pushed, no communication state", providerLogPrefix, cmd.Command))
			return
		}
		slog.Warn(fmt.Sprintf("%s - failed to push %s: %v", providerLogPrefix, cmd.Command, err))
	}
}

// GetInstanceInfo declares the rescan action.
func (p *CatalogProvider) GetInstanceInfo(_ context.Context) (descriptor.InstanceDetails, error) {
	desc := descriptor.PlainText("Reload the device catalog")
	return descriptor.InstanceDetails{
		APIVersion:           p.apiVersion,
		CommunicationStateID: p.commStateID,
		Actions: []descriptor.InstanceAction{{
			ActionBase: descriptor.ActionBase{ID: ActionRescan, Icon: "refresh", Description: &desc},
			Title:      descriptor.PlainText("Rescan devices"),
			Handler:    p.rescan,
		}},
	}, nil
}

func (p *CatalogProvider) rescan(ctx context.Context, actx descriptor.ActionContext, _ descriptor.ActionOptions) (descriptor.Refresh, error) {
	ok, err := actx.ShowConfirmation(ctx, descriptor.PlainText("Reload the device catalog?"))
	if err != nil {
		return descriptor.RefreshNone, err
	}
	if !ok {
		return descriptor.RefreshNone, nil
	}

	if p.reload != nil {
		cat, err := p.reload()
		if err != nil {
			return descriptor.RefreshNone, fmt.Errorf("%s - failed to reload catalog: %w", providerLogPrefix, err)
		}
		p.mu.Lock()
		p.catalog = cat
		p.mu.Unlock()
		slog.Info(fmt.Sprintf("%s - Catalog reloaded with %d devices", providerLogPrefix, len(cat.Devices)))
	}

	p.push(ctx, events.AllUpdate())
	return descriptor.RefreshAll, nil
}

// ListDevices builds the device descriptors and creates missing control states.
func (p *CatalogProvider) ListDevices(ctx context.Context) ([]descriptor.DeviceInfo, error) {
	cat := p.snapshot()
	devices := make([]descriptor.DeviceInfo, 0, len(cat.Devices))
	for i := range cat.Devices {
		info, err := p.deviceInfo(ctx, &cat.Devices[i])
		if err != nil {
			return nil, err
		}
		devices = append(devices, info)
	}
	return devices, nil
}

func rawString(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	data, _ := json.Marshal(s)
	return data
}

func (p *CatalogProvider) deviceInfo(ctx context.Context, d *CatalogDevice) (descriptor.DeviceInfo, error) {
	status := "disconnected"
	if d.Connected {
		status = "connected"
	}
	info := descriptor.DeviceInfo{
		DeviceMeta: descriptor.DeviceMeta{
			ID:           d.ID,
			Name:         rawString(p.displayName(d)),
			Icon:         rawString(d.Icon),
			Manufacturer: rawString(d.Manufacturer),
			Model:        rawString(d.Model),
			Status:       rawString(status),
			HasDetails:   json.RawMessage("true"),
		},
	}
	if d.Group != "" {
		info.Group = &descriptor.Group{Key: d.Group}
	}

	if d.Identify {
		info.Actions = append(info.Actions, descriptor.DeviceAction{
			ActionBase: descriptor.ActionBase{ID: ActionIdentify, Icon: "lightbulb"},
			Handler:    p.identify,
		})
	}
	info.Actions = append(info.Actions, descriptor.DeviceAction{
		ActionBase: descriptor.ActionBase{ID: ActionRename, Icon: "edit"},
		Handler:    p.rename,
	})

	for _, ctl := range d.Controls {
		control, err := p.control(ctx, d.ID, ctl)
		if err != nil {
			return descriptor.DeviceInfo{}, err
		}
		info.Controls = append(info.Controls, control)
	}
	return info, nil
}

func (p *CatalogProvider) control(ctx context.Context, deviceID string, ctl CatalogControl) (descriptor.DeviceControl, error) {
	stateID := p.StateID(deviceID, ctl.ID)
	control := descriptor.DeviceControl{
		ControlBase: descriptor.ControlBase{
			ID:      ctl.ID,
			Type:    ctl.Type,
			StateID: stateID,
			Icon:    ctl.Icon,
		},
	}
	if ctl.Label != "" {
		label := descriptor.PlainText(ctl.Label)
		control.Label = &label
	}
	if ctl.Channel != "" {
		control.Channel = &descriptor.ChannelInfo{Name: descriptor.PlainText(ctl.Channel)}
	}

	switch ctl.Type {
	case descriptor.ControlSwitch:
		if err := p.store.Ensure(ctx, stateID, strconv.FormatBool(ctl.Initial)); err != nil {
			return descriptor.DeviceControl{}, fmt.Errorf("%s - failed to create state %s: %w", providerLogPrefix, stateID, err)
		}
		current, err := p.readSwitch(ctx, stateID, ctl.Initial)
		if err != nil {
			return descriptor.DeviceControl{}, err
		}
		control.State = current
		control.Handler = p.writeSwitch(stateID)
		control.GetStateHandler = func(ctx context.Context, _, _ string, _ descriptor.ActionContext) (*descriptor.State, error) {
			return p.readSwitch(ctx, stateID, ctl.Initial)
		}
	case descriptor.ControlButton:
		control.Handler = p.pressButton(stateID)
	}
	return control, nil
}

func (p *CatalogProvider) readSwitch(ctx context.Context, stateID string, initial bool) (*descriptor.State, error) {
	v, err := p.store.Get(ctx, stateID)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read %s: %w", providerLogPrefix, stateID, err)
	}
	if v == nil {
		return &descriptor.State{Val: initial, Ack: true}, nil
	}
	on, err := strconv.ParseBool(v.Val)
	if err != nil {
		return nil, fmt.Errorf("%s - state %s holds %q, not a boolean", providerLogPrefix, stateID, v.Val)
	}
	return &descriptor.State{Val: on, Ack: v.Ack, Ts: v.Ts.UnixMilli()}, nil
}

func (p *CatalogProvider) writeSwitch(stateID string) descriptor.ControlHandler {
	return func(ctx context.Context, _, controlID string, newState descriptor.ControlState, _ descriptor.ActionContext) (*descriptor.State, error) {
		on, ok := newState.AsBool()
		if !ok {
			return nil, descriptor.NewError(descriptor.CodeInvalidPayload, "Control %s expects a boolean", controlID)
		}
		return p.write(ctx, stateID, strconv.FormatBool(on), on)
	}
}

func (p *CatalogProvider) pressButton(stateID string) descriptor.ControlHandler {
	return func(ctx context.Context, _, _ string, _ descriptor.ControlState, _ descriptor.ActionContext) (*descriptor.State, error) {
		return p.write(ctx, stateID, "true", true)
	}
}

func (p *CatalogProvider) write(ctx context.Context, stateID, val string, shown interface{}) (*descriptor.State, error) {
	now := time.Now().UTC()
	err := p.publisher.PublishState(ctx, &events.StateChange{
		ID:        stateID,
		Val:       val,
		Ack:       true,
		Timestamp: now.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to write %s: %w", providerLogPrefix, stateID, err)
	}
	return &descriptor.State{Val: shown, Ack: true, Ts: now.UnixMilli()}, nil
}

func (p *CatalogProvider) identify(ctx context.Context, deviceID string, actx descriptor.ActionContext, _ descriptor.ActionOptions) (descriptor.Refresh, error) {
	d, ok := p.snapshot().Device(deviceID)
	if !ok {
		return descriptor.RefreshNone, fmt.Errorf("%s - unknown device %s", providerLogPrefix, deviceID)
	}

	var value float64
	dialog, err := actx.OpenProgress(ctx, "Identifying "+p.displayName(d), descriptor.ProgressOptions{Value: &value})
	if err != nil {
		return descriptor.RefreshNone, err
	}
	for value < 100 {
		select {
		case <-ctx.Done():
			return descriptor.RefreshNone, ctx.Err()
		case <-time.After(identifyStep):
		}
		value += 25
		v := value
		if err := dialog.Update(ctx, descriptor.ProgressUpdate{Value: &v}); err != nil {
			return descriptor.RefreshNone, err
		}
	}
	if err := dialog.Close(ctx); err != nil {
		return descriptor.RefreshNone, err
	}

	if err := actx.ShowMessage(ctx, descriptor.PlainText(p.displayName(d)+" has blinked")); err != nil {
		return descriptor.RefreshNone, err
	}
	return descriptor.RefreshNone, nil
}

var renameSchema = json.RawMessage(`{"type":"panel","items":{"name":{"type":"text","label":"Name","sm":12}}}`)

func (p *CatalogProvider) rename(ctx context.Context, deviceID string, actx descriptor.ActionContext, _ descriptor.ActionOptions) (descriptor.Refresh, error) {
	d, ok := p.snapshot().Device(deviceID)
	if !ok {
		return descriptor.RefreshNone, fmt.Errorf("%s - unknown device %s", providerLogPrefix, deviceID)
	}

	current, _ := json.Marshal(map[string]string{"name": p.displayName(d)})
	title := descriptor.PlainText("Rename device")
	data, err := actx.ShowForm(ctx, renameSchema, descriptor.FormOptions{Data: current, Title: &title})
	if err != nil {
		return descriptor.RefreshNone, err
	}
	if data == nil {
		return descriptor.RefreshNone, nil
	}

	var answer struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &answer); err != nil || answer.Name == "" {
		return descriptor.RefreshNone, descriptor.NewError(descriptor.CodeInvalidPayload, "Device %s needs a name", deviceID)
	}

	p.mu.Lock()
	p.names[deviceID] = answer.Name
	p.mu.Unlock()
	slog.Info(fmt.Sprintf("%s - Device %s renamed to %q", providerLogPrefix, deviceID, answer.Name))

	p.push(ctx, events.InfoUpdate(deviceID, nil))
	return descriptor.RefreshDevice, nil
}

var detailsSchema = json.RawMessage(`{"type":"panel","items":{` +
	`"name":{"type":"staticText","label":"Name"},` +
	`"manufacturer":{"type":"staticText","label":"Manufacturer"},` +
	`"model":{"type":"staticText","label":"Model"}}}`)

// GetDeviceDetails returns a read-only form with the device metadata.
func (p *CatalogProvider) GetDeviceDetails(_ context.Context, deviceID string) (*descriptor.DeviceDetails, error) {
	d, ok := p.snapshot().Device(deviceID)
	if !ok {
		return nil, fmt.Errorf("%s - unknown device %s", providerLogPrefix, deviceID)
	}
	data, err := json.Marshal(map[string]string{
		"name":         p.displayName(d),
		"manufacturer": d.Manufacturer,
		"model":        d.Model,
	})
	if err != nil {
		return nil, err
	}
	return &descriptor.DeviceDetails{ID: deviceID, Schema: detailsSchema, Data: data}, nil
}
