// Package engine implements CardDavEngine, the state machine coordinating
// discovery, per-address-book delta fetching, full-contact retrieval, local
// store application and upsync (spec.md §4.1, §4.4). The engine is the
// "~40%" component of the reference: it owns the sync-state maps for the
// duration of one run and is the only thing in this module that talks to
// the carddav and vcard packages together.
package engine

import (
	"context"
	"time"

	"github.com/carddavsync/engine/carddav"
	"github.com/carddavsync/engine/carderr"
	"github.com/carddavsync/engine/internal/webdav"
	"github.com/carddavsync/engine/logging"
	"github.com/carddavsync/engine/metrics"
	"github.com/carddavsync/engine/syncstate"
	"github.com/carddavsync/engine/vcard"
)

// Config is everything the engine needs to know about one account that
// isn't carried in persistent sync state.
type Config struct {
	AccountID       string
	ServerURL       string
	AddressBookPath string // optional hint from the enclosing framework (spec.md §4.1 step 1).
	IgnoreSSLErrors bool
}

// Result is what Run returns to the embedder: the coalesced A/M/R across
// every address book touched this round (spec.md §6's remote_changes
// callback, rendered as a return value per SPEC_FULL.md §6).
type Result struct {
	Additions     []*vcard.Contact
	Modifications []*vcard.Contact
	Removals      []*vcard.Contact

	// DefaultAddressBookURL is the first address book in enumeration order
	// that had any delta activity (spec.md §4.1, "Default address book").
	DefaultAddressBookURL string

	// ServerAddModsByUID indexes every server-side addition/modification
	// applied this round by vCard UID, for the Syncer façade's spurious-
	// change filter (spec.md §4.4).
	ServerAddModsByUID map[string]*vcard.Contact

	// ResolvedBaseURL is the (possibly redirect-adjusted) base URL Run
	// discovered; callers pass it back into Upsync.
	ResolvedBaseURL string
}

// UpsyncResult is the outcome of one upsync pass across an account's local
// A/M/R (spec.md §4.4, upsync_completed).
type UpsyncResult struct {
	Applied   int
	Spurious  int
	Failed405 int
}

// SignificantDifferences decides whether two contacts sharing a UID differ
// enough that a local modification is real rather than a downsync echo
// (spec.md §4.4, §9 Open Question #3). Supplied by the embedder.
type SignificantDifferences func(local, downsynced *vcard.Contact) bool

// Engine is CardDavEngine: it composes a RequestGenerator, ReplyParser and
// VCardConverter, and owns the persistent sync-state maps exclusively for
// the duration of one Run (spec.md §9, "parent-owned sub-objects").
type Engine struct {
	cfg Config

	reqGen    *carddav.RequestGenerator
	parser    *carddav.ReplyParser
	converter *vcard.VCardConverter

	logger  logging.Logger
	metrics *metrics.Metrics
}

// New builds an Engine. httpClient/auth are handed straight to the
// RequestGenerator; logger/metrics may be nil (a no-op logger and disabled
// metrics are substituted).
func New(cfg Config, httpClient webdav.HTTPClient, auth webdav.AuthProvider, logger logging.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		reqGen:    carddav.NewRequestGenerator(httpClient, auth),
		parser:    carddav.NewReplyParser(),
		converter: vcard.NewVCardConverter(),
		logger:    logger.With(logging.String("account_id", cfg.AccountID)),
		metrics:   m,
	}
}

// Run performs one full discovery + downsync round: it resolves the base
// URL and the set of address books (per AddressBookPath if supplied,
// falling through to full discovery otherwise), then fetches and applies
// the remote delta for every address book, mutating state in place and
// returning the coalesced Result (spec.md §4.1's state machine end-to-end,
// states Init through ApplyRemote).
func (e *Engine) Run(ctx context.Context, state *syncstate.AccountState) (*Result, error) {
	started := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.ObserveSyncDuration(time.Since(started))
		}
	}()

	base, addressBooks, err := e.discover(ctx)
	if err != nil {
		if e.metrics != nil {
			e.metrics.DiscoveryFailuresTotal.Inc()
		}
		return nil, e.fail(err)
	}

	result, err := e.downsyncAll(ctx, base, addressBooks, state)
	if err != nil {
		return nil, e.fail(err)
	}
	result.ResolvedBaseURL = base
	return result, nil
}

// ListAddressBooks performs discovery only, without fetching any contact
// delta — spec.md §6's addressbooks_list listing-only mode.
func (e *Engine) ListAddressBooks(ctx context.Context) ([]carddav.AddressBookInfo, error) {
	_, addressBooks, err := e.discover(ctx)
	if err != nil {
		return nil, e.fail(err)
	}
	return addressBooks, nil
}

func (e *Engine) fail(err error) error {
	if cderr, ok := err.(*carderr.CardDAVError); ok {
		e.logger.Error("sync failed", cderr)
		return cderr
	}
	wrapped := carderr.New(carderr.CodeUnknown, err)
	if httpErr, ok := asHTTPErr(err); ok {
		wrapped = carderr.FromHTTPStatus(httpErr.Code, err)
	}
	e.logger.Error("sync failed", wrapped)
	return wrapped
}

// recordRequest is a thin wrapper every RequestGenerator call goes
// through so the requests_total counter stays accurate without littering
// every call site with metrics plumbing.
func (e *Engine) recordRequest(method string) {
	if e.metrics != nil {
		e.metrics.RequestsTotal.WithLabelValues(method).Inc()
	}
}
