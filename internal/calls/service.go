package calls

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"soapbox/internal/access"
	"soapbox/internal/audit"
	"soapbox/internal/campaigns"
	"soapbox/internal/regions"
	"soapbox/pkg/logger"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

var (
	ErrInvalidArgument = errors.New("calls: invalid argument")
	// ErrInvalidCallTarget is returned when a call names a campaign or number it may not use.
	ErrInvalidCallTarget = errors.New("calls: invalid call target")
	// ErrNumberUnavailable is returned when a number is not in the pool.
	ErrNumberUnavailable = errors.New("calls: number unavailable")
	ErrNumberInUse       = errors.New("calls: number has live calls")
	ErrDuplicateNumber   = errors.New("calls: number already registered")
	ErrInvalidTransition = errors.New("calls: invalid state transition")
	ErrCallLimitReached  = errors.New("calls: campaign concurrent call limit reached")

	ErrNumberNotFound = fmt.Errorf("calls: number %w", access.ErrNotFound)
	ErrCallNotFound   = fmt.Errorf("calls: call %w", access.ErrNotFound)
	ErrResultNotFound = fmt.Errorf("calls: result %w", access.ErrNotFound)
)

// Repository persists numbers, calls and results.
type Repository interface {
	// CreateNumber fails with ErrDuplicateNumber when the phone number is registered.
	CreateNumber(ctx context.Context, n Number) error
	GetNumber(ctx context.Context, id string) (Number, error)
	UpdateNumber(ctx context.Context, id string, fn func(Number) (Number, error)) (Number, error)
	ListNumbers(ctx context.Context, opts ListOptions) ([]Number, error)

	// Checkout atomically moves an active in-pool number out of the pool.
	// Any other starting state fails with ErrNumberUnavailable.
	Checkout(ctx context.Context, id string, now time.Time) (Number, error)
	// Checkin returns the number to the pool. It fails with ErrNumberInUse
	// while a non-terminal call uses the number.
	Checkin(ctx context.Context, id string, now time.Time) (Number, error)

	// CreateCall checks the call's number out and stores the call as one unit.
	CreateCall(ctx context.Context, c Call) (Number, error)
	GetCall(ctx context.Context, id string) (Call, error)
	ListCalls(ctx context.Context, campaignID string) ([]Call, error)
	// UpdateCall locks the call, applies fn and mirrors the new state onto the number.
	// When the call ends and no other live call uses the number, the number is checked in.
	UpdateCall(ctx context.Context, id string, now time.Time, fn func(Call) (Call, error)) (Call, Number, error)

	CreateResult(ctx context.Context, r Result) error
	GetResult(ctx context.Context, id string) (Result, error)
	ListResults(ctx context.Context, campaignID string) ([]Result, error)
}

// CampaignSource resolves campaigns and scripts with the caller's permissions.
type CampaignSource interface {
	GetCampaign(ctx context.Context, sub access.Subject, id string) (campaigns.Campaign, error)
	GetScript(ctx context.Context, sub access.Subject, id string) (campaigns.Script, error)
}

// Geocoder gives a best-effort point for a destination number.
type Geocoder interface {
	Geocode(ctx context.Context, number string) (orb.Point, bool, error)
}

// Limiter caps concurrent calls per campaign (see utils.SlotLimiter).
type Limiter interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Membership checks group membership for ownership transfers.
type Membership interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
}

type Service struct {
	repo      Repository
	campaigns CampaignSource
	members   Membership
	geocoder  Geocoder
	limiter   Limiter
	audit     *audit.Service
	clock     func() time.Time
}

type Option func(*Service)

// WithLimiter enables the per-campaign concurrent call cap.
func WithLimiter(l Limiter) Option { return func(s *Service) { s.limiter = l } }

func WithGeocoder(g Geocoder) Option { return func(s *Service) { s.geocoder = g } }

func WithAudit(a *audit.Service) Option { return func(s *Service) { s.audit = a } }

func NewService(repo Repository, cs CampaignSource, members Membership, opts ...Option) *Service {
	s := &Service{repo: repo, campaigns: cs, members: members, clock: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) now() time.Time { return s.clock().UTC() }

// ---- numbers ----

func (s *Service) CreateNumber(ctx context.Context, sub access.Subject, in NewNumber) (Number, error) {
	if sub.IsAnonymous() || !sub.MemberOf(in.GroupID) {
		return Number{}, access.ErrPermissionDenied
	}
	num := regions.NormalizeNumber(in.Number)
	if len(num) < 3 {
		return Number{}, fmt.Errorf("%w: number %q", ErrInvalidArgument, in.Number)
	}
	if in.Visibility != "" && !in.Visibility.Valid() {
		return Number{}, fmt.Errorf("%w: visibility %q", ErrInvalidArgument, in.Visibility)
	}

	n := Number{
		ID:        uuid.NewString(),
		Number:    num,
		Ownership: access.NewOwnership(sub.UserID, in.GroupID, in.Visibility, s.now()),
		Pooling:   PoolingIn,
	}
	if err := s.repo.CreateNumber(ctx, n); err != nil {
		return Number{}, err
	}
	logger.From(ctx).Info("number created", "number_id", n.ID, "owner_id", n.OwnerID, "group_id", n.GroupID)
	return n, nil
}

func (s *Service) GetNumber(ctx context.Context, sub access.Subject, id string) (Number, error) {
	n, err := s.repo.GetNumber(ctx, id)
	if err != nil {
		return Number{}, err
	}
	if err := access.Check(sub, n.AccessPolicy(), access.ActionView); err != nil {
		return Number{}, err
	}
	return n, nil
}

func (s *Service) ListNumbers(ctx context.Context, sub access.Subject, opts ListOptions) ([]Number, error) {
	rows, err := s.repo.ListNumbers(ctx, opts)
	if err != nil {
		return nil, err
	}
	out := make([]Number, 0, len(rows))
	for _, n := range rows {
		if access.Can(sub, n.AccessPolicy(), access.ActionView) {
			out = append(out, n)
		}
	}
	return out, nil
}

// CheckNumber reports whether sub may perform a on the number.
func (s *Service) CheckNumber(ctx context.Context, sub access.Subject, id string, a access.Action) error {
	n, err := s.repo.GetNumber(ctx, id)
	if err != nil {
		return err
	}
	return access.Check(sub, n.AccessPolicy(), a)
}

// DeactivateNumber soft-deletes a number. A number lent to a live call stays active.
func (s *Service) DeactivateNumber(ctx context.Context, sub access.Subject, id string) (Number, error) {
	n, err := s.repo.UpdateNumber(ctx, id, func(n Number) (Number, error) {
		if !n.Active && access.CanRestore(sub, n.Ownership) {
			return n, nil
		}
		if err := access.Check(sub, n.AccessPolicy(), access.ActionEdit); err != nil {
			return Number{}, err
		}
		if n.Pooling == PoolingOut {
			return Number{}, ErrNumberInUse
		}
		n.Active = false
		n.Touch(s.now())
		return n, nil
	})
	if err != nil {
		return Number{}, err
	}
	s.audit.Log(ctx, audit.Event{Type: audit.EventTypeDeactivated, ActorUserID: sub.UserID, ObjectKind: "number", ObjectID: id, GroupID: n.GroupID})
	return n, nil
}

func (s *Service) RestoreNumber(ctx context.Context, sub access.Subject, id string) (Number, error) {
	n, err := s.repo.UpdateNumber(ctx, id, func(n Number) (Number, error) {
		if !access.CanRestore(sub, n.Ownership) {
			if !n.Active {
				return Number{}, access.ErrNotFound
			}
			return Number{}, access.ErrPermissionDenied
		}
		n.Active = true
		n.Touch(s.now())
		return n, nil
	})
	if err != nil {
		return Number{}, err
	}
	s.audit.Log(ctx, audit.Event{Type: audit.EventTypeRestored, ActorUserID: sub.UserID, ObjectKind: "number", ObjectID: id, GroupID: n.GroupID})
	return n, nil
}

// TransferNumber reassigns ownership. An empty groupID keeps the owning group.
func (s *Service) TransferNumber(ctx context.Context, sub access.Subject, id, ownerID, groupID string) (Number, error) {
	if ownerID == "" {
		return Number{}, fmt.Errorf("%w: owner_id required", ErrInvalidArgument)
	}
	var prev access.Ownership
	n, err := s.repo.UpdateNumber(ctx, id, func(n Number) (Number, error) {
		// Inactive numbers must be restored before they change hands.
		switch {
		case !n.Active && access.CanTransfer(sub, n.Ownership):
			return Number{}, access.ErrPermissionDenied
		case !n.Active:
			return Number{}, access.ErrNotFound
		case !access.CanTransfer(sub, n.Ownership):
			return Number{}, access.ErrPermissionDenied
		}
		prev = n.Ownership
		target := groupID
		if target == "" {
			target = n.GroupID
		}
		ok, err := s.members.IsMember(ctx, target, ownerID)
		if err != nil {
			if errors.Is(err, access.ErrNotFound) {
				return Number{}, fmt.Errorf("%w: group %s", ErrInvalidArgument, target)
			}
			return Number{}, err
		}
		if !ok {
			return Number{}, fmt.Errorf("%w: new owner is not a member of group %s", ErrInvalidArgument, target)
		}
		n.OwnerID, n.GroupID = ownerID, target
		n.Touch(s.now())
		return n, nil
	})
	if err != nil {
		return Number{}, err
	}
	s.audit.Log(ctx, audit.Event{
		Type:        audit.EventTypeOwnershipTransferred,
		ActorUserID: sub.UserID,
		ObjectKind:  "number",
		ObjectID:    id,
		GroupID:     prev.GroupID,
		Metadata:    audit.Meta(map[string]string{"from_owner": prev.OwnerID, "to_owner": n.OwnerID, "to_group": n.GroupID}),
	})
	return n, nil
}

// CheckoutNumber takes a number out of the pool. Of concurrent check-outs of one
// in-pool number exactly one succeeds; the rest get ErrNumberUnavailable.
func (s *Service) CheckoutNumber(ctx context.Context, sub access.Subject, id string) (Number, error) {
	if _, err := s.GetNumber(ctx, sub, id); err != nil {
		return Number{}, err
	}
	n, err := s.repo.Checkout(ctx, id, s.now())
	if err != nil {
		if errors.Is(err, ErrNumberUnavailable) {
			numberCheckoutsTotal.WithLabelValues("unavailable").Inc()
		}
		return Number{}, err
	}
	numberCheckoutsTotal.WithLabelValues("ok").Inc()
	logger.From(ctx).Debug("number checked out", "number_id", id)
	return n, nil
}

// CheckinNumber returns a number to the pool. It needs EDIT on the number
// because it releases a number another user may hold.
func (s *Service) CheckinNumber(ctx context.Context, sub access.Subject, id string) (Number, error) {
	n, err := s.repo.GetNumber(ctx, id)
	if err != nil {
		return Number{}, err
	}
	if err := access.Check(sub, n.AccessPolicy(), access.ActionEdit); err != nil {
		return Number{}, err
	}
	n, err = s.repo.Checkin(ctx, id, s.now())
	if err != nil {
		return Number{}, err
	}
	logger.From(ctx).Debug("number checked in", "number_id", id)
	return n, nil
}

// ---- calls ----

// CreateCall queues a call of an active campaign from an in-pool number.
// The number leaves the pool in the same unit of work that stores the call.
func (s *Service) CreateCall(ctx context.Context, sub access.Subject, in NewCall) (Call, error) {
	if sub.IsAnonymous() {
		return Call{}, access.ErrPermissionDenied
	}
	to := regions.NormalizeNumber(in.ToNumber)
	if to == "" {
		return Call{}, fmt.Errorf("%w: to_number required", ErrInvalidArgument)
	}

	camp, err := s.campaigns.GetCampaign(ctx, sub, in.CampaignID)
	if err != nil {
		return Call{}, targetErr("campaign", in.CampaignID, err)
	}
	if !camp.Active {
		return Call{}, fmt.Errorf("%w: campaign %s is inactive", ErrInvalidCallTarget, camp.ID)
	}
	num, err := s.GetNumber(ctx, sub, in.NumberID)
	if err != nil {
		return Call{}, targetErr("number", in.NumberID, err)
	}
	if !num.Active {
		return Call{}, fmt.Errorf("%w: number %s is inactive", ErrInvalidCallTarget, num.ID)
	}

	if s.limiter != nil {
		ok, err := s.limiter.Acquire(ctx, camp.ID)
		if err != nil {
			return Call{}, fmt.Errorf("calls: acquire campaign slot: %w", err)
		}
		if !ok {
			return Call{}, ErrCallLimitReached
		}
	}

	now := s.now()
	c := Call{
		ID:         uuid.NewString(),
		CampaignID: camp.ID,
		NumberID:   num.ID,
		ToNumber:   to,
		State:      StateQueued,
		CreatedBy:  sub.UserID,
		CreatedAt:  now,
		UpdatedAt:  now,
		ResultIDs:  []string{},
	}
	if _, err := s.repo.CreateCall(ctx, c); err != nil {
		s.releaseSlot(ctx, camp.ID)
		if errors.Is(err, ErrNumberUnavailable) {
			numberCheckoutsTotal.WithLabelValues("unavailable").Inc()
			return Call{}, fmt.Errorf("%w: %w", ErrInvalidCallTarget, err)
		}
		return Call{}, err
	}

	numberCheckoutsTotal.WithLabelValues("ok").Inc()
	callsCreatedTotal.Inc()
	callStateTotal.WithLabelValues(string(StateQueued)).Inc()
	logger.From(ctx).Info("call created", "call_id", c.ID, "campaign_id", c.CampaignID, "number_id", c.NumberID)
	return c, nil
}

// GetCall returns a call if sub can view its campaign.
func (s *Service) GetCall(ctx context.Context, sub access.Subject, id string) (Call, error) {
	c, err := s.repo.GetCall(ctx, id)
	if err != nil {
		return Call{}, err
	}
	if _, err := s.campaigns.GetCampaign(ctx, sub, c.CampaignID); err != nil {
		return Call{}, err
	}
	return c, nil
}

func (s *Service) ListCalls(ctx context.Context, sub access.Subject, campaignID string) ([]Call, error) {
	if _, err := s.campaigns.GetCampaign(ctx, sub, campaignID); err != nil {
		return nil, err
	}
	return s.repo.ListCalls(ctx, campaignID)
}

// UpdateCallState applies a state report. Repeating the current state only refreshes
// duration and provider id. A terminal state checks the number back in once no
// other live call uses it.
func (s *Service) UpdateCallState(ctx context.Context, callID string, u StateUpdate) (Call, error) {
	if _, ok := ParseCallState(string(u.State)); !ok {
		return Call{}, fmt.Errorf("%w: state %q", ErrInvalidArgument, u.State)
	}
	if u.DurationSeconds < 0 {
		return Call{}, fmt.Errorf("%w: negative duration", ErrInvalidArgument)
	}

	var from CallState
	c, n, err := s.repo.UpdateCall(ctx, callID, s.now(), func(c Call) (Call, error) {
		from = c.State
		if c.State != u.State && !c.State.CanTransition(u.State) {
			return Call{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.State, u.State)
		}
		c.State = u.State
		if u.DurationSeconds > c.DurationSeconds {
			c.DurationSeconds = u.DurationSeconds
		}
		if u.ProviderCallID != "" {
			c.ProviderCallID = u.ProviderCallID
		}
		return c, nil
	})
	if err != nil {
		return Call{}, err
	}

	if from != c.State {
		callStateTotal.WithLabelValues(string(c.State)).Inc()
		if c.State.Terminal() {
			s.releaseSlot(ctx, c.CampaignID)
			callDurationSeconds.Observe(float64(c.DurationSeconds))
		}
		logger.From(ctx).Info("call state changed", "call_id", c.ID, "from", from, "to", c.State, "number_pooling", n.Pooling)
	}
	return c, nil
}

func (s *Service) releaseSlot(ctx context.Context, campaignID string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Release(ctx, campaignID); err != nil {
		logger.From(ctx).Warn("release campaign slot failed", "campaign_id", campaignID, "err", err)
	}
}

// ---- results ----

// RecordResult stores an answer for a call. The outcome follows the call's state
// and the location falls back to the geocoder when the caller sends none.
func (s *Service) RecordResult(ctx context.Context, sub access.Subject, in NewResult) (Result, error) {
	if sub.IsAnonymous() {
		return Result{}, access.ErrPermissionDenied
	}
	if in.QuestionID == "" {
		return Result{}, fmt.Errorf("%w: question_id required", ErrInvalidArgument)
	}
	c, err := s.GetCall(ctx, sub, in.CallID)
	if err != nil {
		return Result{}, err
	}
	camp, err := s.campaigns.GetCampaign(ctx, sub, c.CampaignID)
	if err != nil {
		return Result{}, err
	}
	script, err := s.campaigns.GetScript(ctx, sub, camp.ScriptID)
	if err != nil {
		return Result{}, err
	}
	if !containsID(script.QuestionIDs, in.QuestionID) {
		return Result{}, fmt.Errorf("%w: question %s is not in the campaign script", ErrInvalidArgument, in.QuestionID)
	}

	loc := in.Location
	if loc == nil && s.geocoder != nil {
		pt, ok, err := s.geocoder.Geocode(ctx, c.ToNumber)
		if err != nil {
			logger.From(ctx).Warn("geocode failed", "call_id", c.ID, "err", err)
		} else if ok {
			loc = latLonOf(pt)
		}
	}

	now := s.now()
	r := Result{
		ID:         uuid.NewString(),
		Ownership:  access.NewOwnership(sub.UserID, camp.GroupID, access.VisibilityGroup, now),
		Outcome:    OutcomeOf(c.State),
		CampaignID: camp.ID,
		CallID:     c.ID,
		NumberID:   c.NumberID,
		ToNumber:   c.ToNumber,
		Location:   loc,
		QuestionID: in.QuestionID,
		Answer:     strings.TrimSpace(in.Answer),
		RecordedAt: now,
	}
	if err := s.repo.CreateResult(ctx, r); err != nil {
		return Result{}, err
	}
	resultsRecordedTotal.WithLabelValues(string(r.Outcome)).Inc()
	return r, nil
}

func (s *Service) GetResult(ctx context.Context, sub access.Subject, id string) (Result, error) {
	r, err := s.repo.GetResult(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if err := access.Check(sub, r.AccessPolicy(), access.ActionView); err != nil {
		return Result{}, err
	}
	return r, nil
}

func (s *Service) CheckResult(ctx context.Context, sub access.Subject, id string, a access.Action) error {
	r, err := s.repo.GetResult(ctx, id)
	if err != nil {
		return err
	}
	return access.Check(sub, r.AccessPolicy(), a)
}

func (s *Service) ListResults(ctx context.Context, sub access.Subject, campaignID string) ([]Result, error) {
	if _, err := s.campaigns.GetCampaign(ctx, sub, campaignID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListResults(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(rows))
	for _, r := range rows {
		if r.Active && access.Can(sub, r.AccessPolicy(), access.ActionView) {
			out = append(out, r)
		}
	}
	return out, nil
}

func targetErr(what, id string, err error) error {
	if errors.Is(err, access.ErrNotFound) || errors.Is(err, access.ErrPermissionDenied) {
		return fmt.Errorf("%w: %s %s: %w", ErrInvalidCallTarget, what, id, err)
	}
	return err
}

func containsID(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
