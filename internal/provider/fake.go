package provider

import (
	"sync"

	"github.com/google/uuid"
	"github.com/patrickwarner/adshell/internal/models"
)

var _ Provider = (*FakeProvider)(nil)

// FakeProvider is a scripted Provider for tests and local demos. By default
// instances stay pending until the caller emits events on them; AutoLoad and
// AutoShow make them complete synchronously.
type FakeProvider struct {
	mu        sync.Mutex
	instances []*FakeInstance

	// CreateErr, when set, is returned from CreateForAdRequest.
	CreateErr error
	// AutoLoad emits EventLoaded from Load.
	AutoLoad bool
	// AutoShow emits EventOpened then EventClosed from Show. Rewarded
	// instances also emit EventEarnedReward with AutoReward.
	AutoShow   bool
	AutoReward models.Reward
	// PanicOnShow makes Show panic to exercise fault isolation.
	PanicOnShow bool
}

// NewFakeProvider returns an empty FakeProvider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{}
}

// CreateForAdRequest implements Provider.
func (p *FakeProvider) CreateForAdRequest(unit models.AdUnit) (Instance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	inst := &FakeInstance{id: uuid.NewString(), unit: unit, provider: p}
	p.instances = append(p.instances, inst)
	return inst, nil
}

// Instances returns every instance created so far, in creation order.
func (p *FakeProvider) Instances() []*FakeInstance {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*FakeInstance(nil), p.instances...)
}

// CreatedFor counts CreateForAdRequest calls for a unit id.
func (p *FakeProvider) CreatedFor(unitID string) int {
	n := 0
	for _, inst := range p.Instances() {
		if inst.unit.UnitID == unitID {
			n++
		}
	}
	return n
}

// Last returns the most recent instance for a unit id, or nil.
func (p *FakeProvider) Last(unitID string) *FakeInstance {
	insts := p.Instances()
	for i := len(insts) - 1; i >= 0; i-- {
		if insts[i].unit.UnitID == unitID {
			return insts[i]
		}
	}
	return nil
}

func (p *FakeProvider) settings() (autoLoad, autoShow, panicOnShow bool, reward models.Reward) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.AutoLoad, p.AutoShow, p.PanicOnShow, p.AutoReward
}

// FakeInstance is an Instance whose events are driven by the test.
type FakeInstance struct {
	Emitter
	id       string
	unit     models.AdUnit
	provider *FakeProvider

	mu        sync.Mutex
	loadCalls int
	showCalls int
}

func (i *FakeInstance) ID() string          { return i.id }
func (i *FakeInstance) Unit() models.AdUnit { return i.unit }

// Load implements Instance.
func (i *FakeInstance) Load() error {
	i.mu.Lock()
	i.loadCalls++
	i.mu.Unlock()
	if autoLoad, _, _, _ := i.provider.settings(); autoLoad {
		i.Emit(Event{Type: EventLoaded})
	}
	return nil
}

// Show implements Instance.
func (i *FakeInstance) Show() error {
	i.mu.Lock()
	i.showCalls++
	i.mu.Unlock()
	_, autoShow, panicOnShow, reward := i.provider.settings()
	if panicOnShow {
		panic("fake provider: show exploded")
	}
	if autoShow {
		i.Emit(Event{Type: EventOpened})
		if i.unit.Kind == models.AdKindRewarded {
			r := reward
			i.Emit(Event{Type: EventEarnedReward, Reward: &r})
		}
		i.Emit(Event{Type: EventClosed})
	}
	return nil
}

// LoadCalls returns how many times Load was invoked.
func (i *FakeInstance) LoadCalls() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.loadCalls
}

// ShowCalls returns how many times Show was invoked.
func (i *FakeInstance) ShowCalls() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.showCalls
}
