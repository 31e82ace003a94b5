package dashboard

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb/maptile"

	"github.com/i474232898/karwanua/internal/environment"
	"github.com/i474232898/karwanua/internal/gibs"
)

const (
	DefaultSettleDelay = 500 * time.Millisecond
	DefaultOpacity     = 0.7
	DefaultCellSize    = 0.003
)

// LayerState is a copy of the map layer controls.
type LayerState struct {
	ActiveLayer     gibs.Layer
	SelectedDate    string
	ShowAirQuality  bool
	Opacity         float64
	CellSize        float64
	IsTransitioning bool
}

// LayerOption configures a LayerControl.
type LayerOption func(*LayerControl)

// WithLayerClock sets the clock used for the default date and settle timers.
func WithLayerClock(clock clockwork.Clock) LayerOption {
	return func(lc *LayerControl) {
		lc.clock = clock
	}
}

// WithSettleDelay sets how long IsTransitioning stays set after a layer switch.
func WithSettleDelay(d time.Duration) LayerOption {
	return func(lc *LayerControl) {
		lc.settle = d
	}
}

// LayerControl holds the map layer selection. Layer switches raise
// IsTransitioning until their settle timer fires; the flag drops once the
// last pending timer has fired.
type LayerControl struct {
	bus    *Bus
	logger *slog.Logger
	clock  clockwork.Clock
	settle time.Duration

	mu     sync.Mutex
	state  LayerState
	timers map[uint64]clockwork.Timer
	nextID uint64
	closed bool
}

// NewLayerControl creates a LayerControl with default state. bus may be nil.
func NewLayerControl(bus *Bus, logger *slog.Logger, opts ...LayerOption) *LayerControl {
	lc := &LayerControl{
		bus:    bus,
		logger: logger,
		clock:  clockwork.NewRealClock(),
		settle: DefaultSettleDelay,
		timers: make(map[uint64]clockwork.Timer),
	}
	for _, opt := range opts {
		opt(lc)
	}

	lc.state = LayerState{
		ActiveLayer:    gibs.LayerTrueColor,
		SelectedDate:   lc.clock.Now().AddDate(0, 0, -1).Format(environment.DateLayout),
		ShowAirQuality: true,
		Opacity:        DefaultOpacity,
		CellSize:       DefaultCellSize,
	}
	return lc
}

// State returns the current controls.
func (lc *LayerControl) State() LayerState {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.state
}

// SetActiveLayer switches the base layer and starts a transition.
func (lc *LayerControl) SetActiveLayer(name string) error {
	layer, err := gibs.ParseLayer(name)
	if err != nil {
		return err
	}

	lc.mu.Lock()
	lc.state.ActiveLayer = layer
	if !lc.closed {
		lc.state.IsTransitioning = true
		lc.nextID++
		id := lc.nextID
		lc.timers[id] = lc.clock.AfterFunc(lc.settle, func() { lc.settled(id) })
	}
	lc.mu.Unlock()

	lc.logger.Debug("layer changed", "layer", layer)
	lc.bus.Publish(Event{Kind: EventLayerChanged, Layer: layer})
	return nil
}

func (lc *LayerControl) settled(id uint64) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if _, ok := lc.timers[id]; !ok {
		return
	}
	delete(lc.timers, id)
	if len(lc.timers) == 0 {
		lc.state.IsTransitioning = false
	}
}

// SetSelectedDate sets the imagery date (YYYY-MM-DD).
func (lc *LayerControl) SetSelectedDate(date string) error {
	if date == "" {
		return &environment.ValidationError{Field: "date", Message: "date is required"}
	}
	if _, err := environment.ParseDate(date); err != nil {
		return err
	}

	lc.mu.Lock()
	lc.state.SelectedDate = date
	lc.mu.Unlock()

	lc.bus.Publish(Event{Kind: EventDateChanged, Date: date})
	return nil
}

// SetShowAirQuality toggles the air-quality overlay.
func (lc *LayerControl) SetShowAirQuality(show bool) {
	lc.mu.Lock()
	lc.state.ShowAirQuality = show
	lc.mu.Unlock()
}

// SetOpacity sets the overlay opacity, in [0,1].
func (lc *LayerControl) SetOpacity(opacity float64) error {
	if opacity < 0 || opacity > 1 || opacity != opacity {
		return &environment.ValidationError{Field: "opacity", Message: fmt.Sprintf("%v is outside [0,1]", opacity)}
	}
	lc.mu.Lock()
	lc.state.Opacity = opacity
	lc.mu.Unlock()
	return nil
}

// SetCellSize sets the air-quality grid cell size in degrees.
func (lc *LayerControl) SetCellSize(size float64) error {
	if !(size > 0) {
		return &environment.ValidationError{Field: "cellSize", Message: fmt.Sprintf("%v must be positive", size)}
	}
	lc.mu.Lock()
	lc.state.CellSize = size
	lc.mu.Unlock()
	return nil
}

// TileURL returns the GIBS tile covering lat/lon at zoom for the active
// layer and date.
func (lc *LayerControl) TileURL(lat, lon float64, zoom maptile.Zoom) (maptile.Tile, string, error) {
	s := lc.State()
	return gibs.Locate(s.ActiveLayer, s.SelectedDate, lat, lon, zoom)
}

// Close stops pending settle timers and clears the transition flag.
func (lc *LayerControl) Close() {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	for id, t := range lc.timers {
		t.Stop()
		delete(lc.timers, id)
	}
	lc.state.IsTransitioning = false
	lc.closed = true
}
