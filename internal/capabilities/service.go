package capabilities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/guildmarket/pkg/enums"
	pkgerrors "github.com/angelmondragon/guildmarket/pkg/errors"
	pkgredis "github.com/angelmondragon/guildmarket/pkg/redis"
)

const (
	MessageExpired    = "this control has expired"
	MessageNotYours   = "this control belongs to someone else"
	MessageNotAllowed = "this action is not available to you"
	customIDPrefix    = "order"
	customIDSeparator = ":"
	defaultTokenTTL   = 7 * 24 * time.Hour
)

// Capability authorizes one actor to act on one order in one role.
type Capability struct {
	OrderID int64           `json:"order_id"`
	Role    enums.ActorRole `json:"role"`
	ActorID string          `json:"actor_id"`
}

// Store is the subset of the redis client used for tokens.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	GetDel(ctx context.Context, key string) (string, error)
	CapabilityKey(token string) string
}

// Service issues and redeems single-use capability tokens.
type Service struct {
	store Store
	ttl   time.Duration
}

func NewService(store Store, ttl time.Duration) (*Service, error) {
	if store == nil {
		return nil, errors.New("capability store required")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Service{store: store, ttl: ttl}, nil
}

// Issue stores grant under a fresh random token and returns the token.
func (s *Service) Issue(ctx context.Context, grant Capability) (string, error) {
	if grant.OrderID <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if grant.Role != enums.ActorRoleCustomer && grant.Role != enums.ActorRoleSupplier {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("capability role %q not supported", grant.Role))
	}
	if strings.TrimSpace(grant.ActorID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}
	token := uuid.NewString()
	if err := s.put(ctx, token, grant); err != nil {
		return "", err
	}
	return token, nil
}

// Redeem consumes token for actorID. The holder is checked before the
// token is consumed, so a press by anyone else leaves it untouched with its
// original expiry.
func (s *Service) Redeem(ctx context.Context, token, actorID string) (*Capability, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, MessageExpired)
	}
	key := s.store.CapabilityKey(token)

	peeked, err := s.load(ctx, key, s.store.Get)
	if err != nil {
		return nil, err
	}
	if peeked.ActorID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, MessageNotYours)
	}

	// tokens are immutable once issued; GetDel only decides who wins
	grant, err := s.load(ctx, key, s.store.GetDel)
	if err != nil {
		return nil, err
	}
	return grant, nil
}

func (s *Service) load(ctx context.Context, key string, read func(context.Context, string) (string, error)) (*Capability, error) {
	raw, err := read(ctx, key)
	if err != nil {
		if pkgredis.IsNil(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, MessageExpired)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redeem capability")
	}
	var grant Capability
	if err := json.Unmarshal([]byte(raw), &grant); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode capability")
	}
	return &grant, nil
}

// Restore puts a redeemed token back, e.g. after the order operation failed
// on a retryable dependency error.
func (s *Service) Restore(ctx context.Context, token string, grant Capability) error {
	return s.put(ctx, token, grant)
}

// Authorize checks that the capability's role may perform action.
func Authorize(grant Capability, action enums.OrderAction) error {
	if !action.AllowedFor(grant.Role) {
		return pkgerrors.New(pkgerrors.CodeForbidden, MessageNotAllowed)
	}
	return nil
}

func (s *Service) put(ctx context.Context, token string, grant Capability) error {
	payload, err := json.Marshal(grant)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode capability")
	}
	if err := s.store.Set(ctx, s.store.CapabilityKey(token), string(payload), s.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store capability")
	}
	return nil
}

// CustomID builds the button id carrying an action and a token.
func CustomID(action enums.OrderAction, token string) string {
	return strings.Join([]string{customIDPrefix, string(action), token}, customIDSeparator)
}

// ParseCustomID splits a button id produced by CustomID.
func ParseCustomID(id string) (enums.OrderAction, string, error) {
	parts := strings.Split(id, customIDSeparator)
	if len(parts) != 3 || parts[0] != customIDPrefix || parts[2] == "" {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "unknown control")
	}
	action, err := enums.ParseOrderAction(parts[1])
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown control")
	}
	return action, parts[2], nil
}
