package provider

import (
	"context"
	"io"
	"iter"
	"time"

	"github.com/pysugar/service-interactor/internal/credential"
	"github.com/pysugar/service-interactor/internal/db/models"
	"github.com/pysugar/service-interactor/internal/logging"
	"github.com/pysugar/service-interactor/internal/scopes"
	"go.uber.org/zap"
)

// BaseOptions holds per-provider constants.
type BaseOptions struct {
	// RequireAccessToken makes IsEnabled demand a non-empty access token,
	// not just a stored token row.
	RequireAccessToken bool
	// PrimaryEmailDomains are the provider's own consumer mail domains.
	PrimaryEmailDomains []string
	// EmailKey is the profile field holding the account's address.
	EmailKey string
}

// Base implements the predicates shared by all providers and fails every
// capability with ErrNotSupported. Vendor adapters embed it and override
// what they implement.
type Base struct {
	kind    Kind
	account *models.SocialAccount
	ledger  *scopes.Ledger
	holder  *credential.Holder
	opts    BaseOptions
}

// NewBase creates the shared part of an adapter.
func NewBase(kind Kind, account *models.SocialAccount, ledger *scopes.Ledger, holder *credential.Holder, opts BaseOptions) Base {
	if opts.EmailKey == "" {
		opts.EmailKey = "email"
	}
	return Base{kind: kind, account: account, ledger: ledger, holder: holder, opts: opts}
}

func (b *Base) Kind() Kind { return b.kind }

// Account returns the linked social account.
func (b *Base) Account() *models.SocialAccount { return b.account }

// Holder returns the account's credential holder.
func (b *Base) Holder() *credential.Holder { return b.holder }

func (b *Base) PrimaryEmailDomains() []string { return b.opts.PrimaryEmailDomains }

func (b *Base) Email() string { return b.account.Extra(b.opts.EmailKey) }

// IsEnabled reports whether the account has a usable stored token.
func (b *Base) IsEnabled(ctx context.Context) bool {
	return b.holder.HasToken(ctx, b.opts.RequireAccessToken)
}

// HasAccess intersects what the provider's catalogue offers for accessType
// with what this account has been granted.
func (b *Base) HasAccess(ctx context.Context, accessType string) bool {
	log := logging.From(ctx)
	offers, err := b.ledger.ProviderOffers(ctx, string(b.kind), accessType)
	if err != nil {
		log.Error("scope catalogue lookup failed", zap.String("provider", string(b.kind)), zap.Error(err))
		return false
	}
	if !offers || !b.IsEnabled(ctx) {
		return false
	}
	granted, err := b.ledger.HasGrantedAccess(ctx, b.account.ID, accessType)
	if err != nil {
		log.Error("granted scope lookup failed", zap.Uint("account_id", b.account.ID), zap.Error(err))
		return false
	}
	return granted
}

func (b *Base) HasCalendarAccess(ctx context.Context) bool {
	return b.HasAccess(ctx, models.AccessTypeCalendar)
}

func (b *Base) HasFileAccess(ctx context.Context) bool {
	return b.HasAccess(ctx, models.AccessTypeFiles)
}

func (b *Base) HasYouTubeAccess(ctx context.Context) bool {
	return b.HasAccess(ctx, models.AccessTypeYouTube)
}

// AccessGrantedAt returns when the account first obtained accessType.
func (b *Base) AccessGrantedAt(ctx context.Context, accessType string) (time.Time, bool) {
	at, ok, err := b.ledger.GrantedAt(ctx, b.account.ID, accessType)
	if err != nil {
		logging.From(ctx).Error("granted scope lookup failed", zap.Uint("account_id", b.account.ID), zap.Error(err))
		return time.Time{}, false
	}
	return at, ok
}

// RequestScopes returns the scopes to request when sending the user back
// through consent for accessType ("" for the current grant set).
func (b *Base) RequestScopes(ctx context.Context, accessType string) ([]string, error) {
	return b.ledger.RequestScopes(ctx, b.account, accessType)
}

func (b *Base) Calendars(ctx context.Context) iter.Seq2[Calendar, error] {
	return Fail[Calendar](NotSupported(b.kind, "calendars"))
}

func (b *Base) CalendarEvents(ctx context.Context, calendarID string, q EventQuery) iter.Seq2[CalendarEvent, error] {
	return Fail[CalendarEvent](NotSupported(b.kind, "calendar events"))
}

func (b *Base) CreateCalendarEvent(ctx context.Context, calendarID string, in EventInput) (CalendarEvent, error) {
	return CalendarEvent{}, NotSupported(b.kind, "calendar event creation")
}

func (b *Base) DeleteCalendarEvent(ctx context.Context, calendarID, eventID string) error {
	return NotSupported(b.kind, "calendar event deletion")
}

func (b *Base) Files(ctx context.Context, q FileQuery) iter.Seq2[File, error] {
	return Fail[File](NotSupported(b.kind, "files"))
}

func (b *Base) FileDetails(ctx context.Context, fileID string) (File, error) {
	return File{}, NotSupported(b.kind, "file details")
}

func (b *Base) DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	return nil, NotSupported(b.kind, "file download")
}

func (b *Base) ExportFile(ctx context.Context, fileID, mimeType string) (io.ReadCloser, error) {
	return nil, NotSupported(b.kind, "file export")
}
