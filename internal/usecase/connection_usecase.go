package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/qrave1/LiveRoom/internal/application/constant"
	"github.com/qrave1/LiveRoom/internal/application/metric"
	"github.com/qrave1/LiveRoom/internal/domain"
	"github.com/qrave1/LiveRoom/internal/infra/adapters/memory"
)

const (
	eventQueueSize       = 256
	subscriberBufferSize = 16
)

// ConnectionUsecase владеет одним подключением к комнате: креды, connect,
// disconnect, события транспорта и пересчет ростера.
type ConnectionUsecase interface {
	RequestCredential(ctx context.Context, userID, roomID string) (domain.RoomCredential, error)
	Connect(ctx context.Context, credential domain.RoomCredential) error
	Disconnect(ctx context.Context) error
	Close(ctx context.Context) error

	State() domain.ConnectionState
	Roster() []domain.ParticipantViewModel
	Snapshot() domain.RosterSnapshot
	Credential() (domain.RoomCredential, bool)
	LocalIdentity() string

	// Subscribe отдает снапшоты после каждого пересчета. Медленный подписчик теряет старые.
	Subscribe() (<-chan domain.RosterSnapshot, func())
	Refresh()
	OnData(fn func(senderID string, payload []byte))

	Publish(ctx context.Context, track domain.MediaTrack) error
	Unpublish(ctx context.Context, trackID string) error
	UpdateTrackState(ctx context.Context, trackID string, muted bool) error
	SendData(ctx context.Context, payload []byte) error
}

type ConnectionOption func(*connectionUsecase)

// WithLocalRole - роль локального участника, если в metadata ее нет
func WithLocalRole(role domain.Role) ConnectionOption {
	return func(c *connectionUsecase) {
		c.localRole = role
	}
}

// WithClock подменяет время для проверки срока кредов
func WithClock(now func() time.Time) ConnectionOption {
	return func(c *connectionUsecase) {
		c.now = now
	}
}

type connectionUsecase struct {
	credentials CredentialService
	transport   Transport
	flagsRepo   memory.ModerationFlagsRepository
	validate    *validator.Validate
	localRole   domain.Role
	now         func() time.Time

	// requests - не больше одного запроса кредов за раз
	requests  singleflight.Group
	reqMu     sync.Mutex
	reqGen    uint64
	reqCtx    context.Context
	reqCancel context.CancelFunc

	// opMu сериализует Connect и Disconnect
	opMu sync.Mutex

	mu            sync.RWMutex
	state         domain.ConnectionState
	credential    domain.RoomCredential
	roster        []domain.ParticipantViewModel
	quality       map[string]domain.ConnectionQuality
	version       uint64
	connectGen    uint64
	connectCancel context.CancelFunc
	closed        bool

	subMu       sync.Mutex
	subscribers map[uint64]chan domain.RosterSnapshot
	nextSubID   uint64

	dataMu       sync.RWMutex
	dataHandlers []func(senderID string, payload []byte)

	// epoch меняется на каждом Disconnect: события прошлого подключения не применяются
	epoch     atomic.Uint64
	events    chan queuedEvent
	done      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
}

func NewConnectionUsecase(
	credentials CredentialService,
	transport Transport,
	flagsRepo memory.ModerationFlagsRepository,
	opts ...ConnectionOption,
) ConnectionUsecase {
	reqCtx, reqCancel := context.WithCancel(context.Background())

	c := &connectionUsecase{
		credentials: credentials,
		transport:   transport,
		flagsRepo:   flagsRepo,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		localRole:   domain.RoleStudent,
		now:         time.Now,
		reqCtx:      reqCtx,
		reqCancel:   reqCancel,
		state:       domain.ConnectionState{Status: domain.StatusIdle},
		roster:      []domain.ParticipantViewModel{},
		quality:     make(map[string]domain.ConnectionQuality),
		subscribers: make(map[uint64]chan domain.RosterSnapshot),
		events:      make(chan queuedEvent, eventQueueSize),
		done:        make(chan struct{}),
		loopDone:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	// Единственная регистрация обработчика за жизнь менеджера
	transport.OnEvent(c.enqueue)

	go c.run()

	metric.SetConnectionState(int(domain.StatusIdle))

	return c
}

func (c *connectionUsecase) RequestCredential(ctx context.Context, userID, roomID string) (domain.RoomCredential, error) {
	if err := c.ensureRequestable(); err != nil {
		return domain.RoomCredential{}, err
	}

	c.reqMu.Lock()
	gen := c.reqGen
	reqCtx := c.reqCtx
	c.reqMu.Unlock()

	key := strconv.FormatUint(gen, 10)

	ch := c.requests.DoChan(key, func() (any, error) {
		cred, err := c.credentials.RequestCredential(reqCtx, userID, roomID)
		if err != nil {
			return nil, err
		}

		if err = c.validate.Struct(cred); err != nil {
			return nil, fmt.Errorf("invalid credential: %w", err)
		}

		if cred.Expired(c.now()) {
			return nil, domain.ErrCredentialExpired
		}

		return cred, nil
	})

	var res singleflight.Result

	select {
	case <-ctx.Done():
		return domain.RoomCredential{}, ctx.Err()
	case res = <-ch:
	}

	if c.requestStale(gen) {
		return domain.RoomCredential{}, domain.ErrRequestDiscarded
	}

	if res.Err != nil {
		metric.RecordCredentialRequest(false)

		slog.Warn(
			"credential request failed",
			slog.String(constant.UserID, userID),
			slog.String(constant.RoomID, roomID),
			slog.Any(constant.Error, res.Err),
		)

		return domain.RoomCredential{}, fmt.Errorf("%w: %w", domain.ErrCredentialFailure, res.Err)
	}

	metric.RecordCredentialRequest(true)

	cred := res.Val.(domain.RoomCredential)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.state.Terminal() {
		return domain.RoomCredential{}, domain.ErrConnectionClosed
	}

	if c.state.Active() {
		return domain.RoomCredential{}, domain.ErrAlreadyConnected
	}

	c.credential = cred

	return cred, nil
}

func (c *connectionUsecase) ensureRequestable() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed || c.state.Terminal() {
		return domain.ErrConnectionClosed
	}

	if c.state.Active() {
		return domain.ErrAlreadyConnected
	}

	return nil
}

func (c *connectionUsecase) requestStale(gen uint64) bool {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	return c.reqGen != gen
}

func (c *connectionUsecase) Connect(ctx context.Context, credential domain.RoomCredential) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()

	if err := c.checkConnectableLocked(credential); err != nil {
		c.mu.Unlock()
		return err
	}

	connectCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.connectGen++
	gen := c.connectGen
	c.connectCancel = cancel

	c.setStateLocked(domain.ConnectionState{Status: domain.StatusConnecting})
	c.recomputeLocked()
	c.mu.Unlock()

	err := c.transport.Connect(connectCtx, credential.ServerURL, credential.Token)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.connectCancel = nil

	if gen != c.connectGen {
		return domain.ErrConnectCanceled
	}

	if err != nil {
		c.credential = domain.RoomCredential{}
		c.setStateLocked(domain.ConnectionState{Status: domain.StatusFailed, Reason: err.Error()})
		c.recomputeLocked()

		return fmt.Errorf("%w: %w", domain.ErrConnectionFailure, err)
	}

	// Транспорт мог успеть сообщить о Connected через очередь событий
	if c.state.Status == domain.StatusConnecting {
		c.setStateLocked(domain.ConnectionState{Status: domain.StatusConnected})
	}

	c.recomputeLocked()

	return nil
}

func (c *connectionUsecase) checkConnectableLocked(credential domain.RoomCredential) error {
	if c.closed || c.state.Terminal() {
		return domain.ErrConnectionClosed
	}

	if c.state.Active() {
		return domain.ErrAlreadyConnected
	}

	if c.credential.IsZero() {
		return domain.ErrNoCredential
	}

	if c.credential.Token != credential.Token || c.credential.ServerURL != credential.ServerURL {
		return fmt.Errorf("%w: credential does not match the one requested", domain.ErrNoCredential)
	}

	if credential.Expired(c.now()) {
		c.credential = domain.RoomCredential{}
		return domain.ErrCredentialExpired
	}

	return nil
}

func (c *connectionUsecase) Disconnect(ctx context.Context) error {
	// Отбрасываем запрос кредов в полете
	c.reqMu.Lock()
	c.reqGen++
	c.reqCancel()
	c.reqCtx, c.reqCancel = context.WithCancel(context.Background())
	c.reqMu.Unlock()

	// Прерываем Connect в полете до того, как ждать opMu
	c.mu.Lock()
	if c.connectCancel != nil {
		c.connectCancel()
	}
	c.connectGen++
	c.mu.Unlock()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	wasActive := c.state.Active()

	c.credential = domain.RoomCredential{}
	clear(c.quality)
	c.flagsRepo.Clear()

	if !c.state.Terminal() && c.state.Status != domain.StatusIdle {
		c.setStateLocked(domain.ConnectionState{Status: domain.StatusIdle})
	}

	c.recomputeLocked()
	c.mu.Unlock()

	if !wasActive {
		c.epoch.Add(1)
		return nil
	}

	err := c.transport.Disconnect(ctx)

	// Disconnected от самого транспорта уже в очереди со старой эпохой
	c.epoch.Add(1)

	if err != nil {
		return fmt.Errorf("transport disconnect: %w", err)
	}

	return nil
}

func (c *connectionUsecase) Close(ctx context.Context) error {
	err := c.Disconnect(ctx)

	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		close(c.done)
		<-c.loopDone

		c.reqMu.Lock()
		c.reqCancel()
		c.reqMu.Unlock()

		c.subMu.Lock()
		for id, ch := range c.subscribers {
			close(ch)
			delete(c.subscribers, id)
		}
		c.subMu.Unlock()
	})

	return err
}

func (c *connectionUsecase) State() domain.ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state
}

func (c *connectionUsecase) Roster() []domain.ParticipantViewModel {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.roster)
}

func (c *connectionUsecase) Snapshot() domain.RosterSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.snapshotLocked()
}

func (c *connectionUsecase) Credential() (domain.RoomCredential, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.credential, !c.credential.IsZero()
}

func (c *connectionUsecase) LocalIdentity() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, p := range c.roster {
		if p.IsLocal {
			return p.ID
		}
	}

	return ""
}

func (c *connectionUsecase) Subscribe() (<-chan domain.RosterSnapshot, func()) {
	ch := make(chan domain.RosterSnapshot, subscriberBufferSize)

	// Под c.mu рассылка не может обогнать первый снапшот
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		close(ch)
		return ch, func() {}
	}

	c.subMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch
	ch <- c.snapshotLocked()
	c.subMu.Unlock()

	return ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()

		if sub, ok := c.subscribers[id]; ok {
			close(sub)
			delete(c.subscribers, id)
		}
	}
}

func (c *connectionUsecase) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.recomputeLocked()
}

func (c *connectionUsecase) OnData(fn func(senderID string, payload []byte)) {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()

	c.dataHandlers = append(c.dataHandlers, fn)
}

func (c *connectionUsecase) Publish(ctx context.Context, track domain.MediaTrack) error {
	if err := c.ensureActive(); err != nil {
		return err
	}

	if err := c.transport.Publish(ctx, track); err != nil {
		return fmt.Errorf("publish track %s: %w", track.ID(), err)
	}

	return nil
}

func (c *connectionUsecase) Unpublish(ctx context.Context, trackID string) error {
	if err := c.ensureActive(); err != nil {
		return err
	}

	if err := c.transport.Unpublish(ctx, trackID); err != nil {
		return fmt.Errorf("unpublish track %s: %w", trackID, err)
	}

	return nil
}

func (c *connectionUsecase) UpdateTrackState(ctx context.Context, trackID string, muted bool) error {
	if err := c.ensureActive(); err != nil {
		return err
	}

	return c.transport.UpdateTrackState(ctx, trackID, muted)
}

func (c *connectionUsecase) SendData(ctx context.Context, payload []byte) error {
	if err := c.ensureActive(); err != nil {
		return err
	}

	return c.transport.SendData(ctx, payload)
}

func (c *connectionUsecase) ensureActive() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return domain.ErrConnectionClosed
	}

	if !c.state.Active() {
		return domain.ErrNotConnected
	}

	return nil
}

type queuedEvent struct {
	ev    domain.RoomEvent
	epoch uint64
}

func (c *connectionUsecase) enqueue(ev domain.RoomEvent) {
	select {
	case c.events <- queuedEvent{ev: ev, epoch: c.epoch.Load()}:
	case <-c.done:
	}
}

// run - единственная горутина, применяющая события транспорта по порядку
func (c *connectionUsecase) run() {
	defer close(c.loopDone)

	for {
		select {
		case <-c.done:
			return
		case q := <-c.events:
			if q.epoch != c.epoch.Load() {
				slog.Debug("drop event of previous connection", slog.String("event", q.ev.Kind.String()))
				continue
			}

			c.handleEvent(q.ev)
		}
	}
}

func (c *connectionUsecase) handleEvent(ev domain.RoomEvent) {
	if ev.Kind == domain.EventDataReceived {
		c.dispatchData(ev.ParticipantID, ev.Data)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// События старого подключения после Disconnect не применяем
	if !c.state.Active() {
		slog.Debug(
			"drop event for inactive connection",
			slog.String("event", ev.Kind.String()),
			slog.String(constant.State, c.state.String()),
		)
		return
	}

	switch ev.Kind {
	case domain.EventConnected:
		if c.state.Status == domain.StatusConnecting {
			c.setStateLocked(domain.ConnectionState{Status: domain.StatusConnected})
		}

	case domain.EventReconnecting:
		c.setStateLocked(domain.ConnectionState{Status: domain.StatusReconnecting})

	case domain.EventReconnected:
		c.setStateLocked(domain.ConnectionState{Status: domain.StatusConnected})

	case domain.EventDisconnected:
		c.credential = domain.RoomCredential{}
		clear(c.quality)
		c.flagsRepo.Clear()
		c.setStateLocked(domain.ConnectionState{Status: domain.StatusDisconnected, Reason: ev.Reason})

	case domain.EventConnectionQualityChanged:
		c.quality[ev.ParticipantID] = ev.Quality

	case domain.EventParticipantLeft:
		delete(c.quality, ev.ParticipantID)
	}

	if ev.Kind.AffectsRoster() {
		c.recomputeLocked()
	}
}

func (c *connectionUsecase) dispatchData(senderID string, payload []byte) {
	c.dataMu.RLock()
	handlers := slices.Clone(c.dataHandlers)
	c.dataMu.RUnlock()

	for _, h := range handlers {
		h(senderID, payload)
	}
}

func (c *connectionUsecase) setStateLocked(state domain.ConnectionState) {
	if c.state == state {
		return
	}

	slog.Info(
		"connection state changed",
		slog.String("from", c.state.String()),
		slog.String(constant.State, state.String()),
	)

	c.state = state

	metric.SetConnectionState(int(state.Status))
}

// recomputeLocked пересобирает ростер целиком и рассылает снапшот
func (c *connectionUsecase) recomputeLocked() {
	roster := []domain.ParticipantViewModel{}

	if c.state.Active() {
		roster = ProjectRoster(
			c.transport.LocalPeer(),
			c.transport.RemotePeers(),
			c.flagsRepo.Snapshot(),
			ProjectionOptions{
				LocalRole: c.localRole,
				Quality:   maps.Clone(c.quality),
			},
		)
	}

	c.roster = roster
	c.version++

	metric.RecordRosterRecompute(len(roster))

	c.broadcast(c.snapshotLocked())
}

func (c *connectionUsecase) snapshotLocked() domain.RosterSnapshot {
	return domain.RosterSnapshot{
		Version:      c.version,
		State:        c.state,
		Participants: c.roster,
	}
}

func (c *connectionUsecase) broadcast(snap domain.RosterSnapshot) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for _, ch := range c.subscribers {
		select {
		case ch <- snap:
			continue
		default:
		}

		// Буфер полон: выкидываем самый старый
		select {
		case <-ch:
		default:
		}

		select {
		case ch <- snap:
		default:
		}
	}
}
