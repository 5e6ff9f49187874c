package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/carddavsync/engine/carderr"
	"github.com/carddavsync/engine/internal/webdav"
	"github.com/carddavsync/engine/logging"
	"github.com/carddavsync/engine/syncstate"
	"github.com/carddavsync/engine/vcard"
	"github.com/google/uuid"
)

// LocalAddition is a locally-originated new contact with no GUID yet
// (spec.md §4.4, local additions).
type LocalAddition struct {
	Contact     *vcard.Contact
	Unsupported vcard.UnsupportedProperties
}

// LocalModification is a locally-originated change to a contact the
// engine has already assigned a GUID.
type LocalModification struct {
	GUID        string
	Contact     *vcard.Contact
	Unsupported vcard.UnsupportedProperties
}

// LocalRemoval is a locally-originated deletion.
type LocalRemoval struct {
	GUID string
}

// Upsync implements spec.md §4.4: it uploads one address book's worth of
// local A/M/R, filtering spurious modifications via serverAddModsByUID and
// significantDiffs, and mutates state the same way the reference
// implementation does — additions are recorded before their PUT
// completes, so a contact added earlier in the same run is immediately
// discoverable by a later modification to it.
func (e *Engine) Upsync(ctx context.Context, base string, state *syncstate.AccountState, addressBookURL string,
	additions []LocalAddition, modifications []LocalModification, removals []LocalRemoval,
	serverAddModsByUID map[string]*vcard.Contact, significantDiffs SignificantDifferences) (*UpsyncResult, error) {

	result := &UpsyncResult{}

	for _, a := range additions {
		if err := e.upsyncAddition(ctx, base, state, addressBookURL, a, result); err != nil {
			return nil, e.fail(err)
		}
	}

	for _, m := range modifications {
		if err := e.upsyncModification(ctx, base, state, addressBookURL, m, serverAddModsByUID, significantDiffs, result); err != nil {
			return nil, e.fail(err)
		}
	}

	for _, r := range removals {
		if err := e.upsyncRemoval(ctx, base, state, addressBookURL, r, result); err != nil {
			return nil, e.fail(err)
		}
	}

	if e.metrics != nil {
		e.metrics.ObserveAMR("up", len(additions), len(modifications), len(removals))
	}
	return result, nil
}

func (e *Engine) upsyncAddition(ctx context.Context, base string, state *syncstate.AccountState, abURL string, a LocalAddition, result *UpsyncResult) error {
	serverUID := strings.NewReplacer("-", "", "{", "", "}", "").Replace(uuid.NewString())
	guid := syncstate.BuildGUID(e.cfg.AccountID, abURL, serverUID)
	uri := abURL + "/" + serverUID + ".vcf"

	a.Contact.GUID = serverUID

	state.ContactUIDs[guid] = serverUID
	state.ContactURIs[guid] = uri
	state.ContactUnsupportedProperties[guid] = a.Unsupported
	state.AddGUID(abURL, guid)

	vcardText, err := e.converter.Export(a.Contact, a.Unsupported)
	if err != nil {
		return carderr.New(carderr.CodeUnknown, fmt.Errorf("engine: exporting local addition: %w", err))
	}

	e.recordRequest("PUT")
	resp, err := e.reqGen.UpsyncAddMod(ctx, base, uri, "", vcardText)
	if !e.handleUpsyncResponse(resp, err, guid, state, result) {
		return e.asUpsyncError(err)
	}
	return nil
}

func (e *Engine) upsyncModification(ctx context.Context, base string, state *syncstate.AccountState, abURL string, m LocalModification,
	serverAddModsByUID map[string]*vcard.Contact, significantDiffs SignificantDifferences, result *UpsyncResult) error {

	guid, ok := e.resolveGUID(state, abURL, m.GUID)
	if !ok {
		e.logger.Warn("local modification references unknown guid, skipping", logging.String("guid", m.GUID))
		return nil
	}

	serverUID := state.ContactUIDs[guid]
	if downsynced, ok := serverAddModsByUID[serverUID]; ok && significantDiffs != nil && !significantDiffs(m.Contact, downsynced) {
		result.Spurious++
		if e.metrics != nil {
			e.metrics.SpuriousModificationsTotal.Inc()
		}
		return nil
	}

	unsupported := m.Unsupported
	if unsupported == nil {
		unsupported = state.ContactUnsupportedProperties[guid]
	}
	m.Contact.GUID = serverUID

	vcardText, err := e.converter.Export(m.Contact, unsupported)
	if err != nil {
		return carderr.New(carderr.CodeUnknown, fmt.Errorf("engine: exporting local modification: %w", err))
	}

	uri := state.ContactURIs[guid]
	etag := state.ContactETags[guid]

	e.recordRequest("PUT")
	resp, err := e.reqGen.UpsyncAddMod(ctx, base, uri, etag, vcardText)
	if !e.handleUpsyncResponse(resp, err, guid, state, result) {
		return e.asUpsyncError(err)
	}
	return nil
}

func (e *Engine) upsyncRemoval(ctx context.Context, base string, state *syncstate.AccountState, abURL string, r LocalRemoval, result *UpsyncResult) error {
	guid, ok := e.resolveGUID(state, abURL, r.GUID)
	if !ok {
		e.logger.Warn("local removal references unknown guid, skipping", logging.String("guid", r.GUID))
		return nil
	}

	uri := state.ContactURIs[guid]
	etag := state.ContactETags[guid]
	state.RemoveGUID(abURL, guid)

	e.recordRequest("DELETE")
	resp, err := e.reqGen.UpsyncDeletion(ctx, base, uri, etag)
	if err != nil {
		if httpErr, ok := asHTTPErr(err); ok && httpErr.Code == http.StatusMethodNotAllowed {
			e.logger.Warn("read-only collection rejected delete", logging.String("uri", uri))
			result.Failed405++
			return nil
		}
		return carderr.ClassifyTransportError(err, e.cfg.IgnoreSSLErrors)
	}
	resp.Body.Close()
	result.Applied++
	return nil
}

// resolveGUID looks up guid directly, then via legacy-form migration
// (spec.md §9, GUID migration), rekeying state atomically on success.
func (e *Engine) resolveGUID(state *syncstate.AccountState, abURL, guid string) (string, bool) {
	if _, ok := state.ContactUIDs[guid]; ok {
		return guid, true
	}
	if syncstate.IsLegacyGUID(guid) {
		migrated := syncstate.MigrateLegacyGUID(guid, abURL)
		if _, ok := state.ContactUIDs[migrated]; ok {
			state.RekeyGUID(abURL, guid, migrated)
			return migrated, true
		}
	}
	return "", false
}

// handleUpsyncResponse implements spec.md §4.4's ETag-refresh contract and
// §4.4/§7's 405-swallow rule. It returns false when the caller should
// abort the whole upsync (any HTTP error other than 405).
func (e *Engine) handleUpsyncResponse(resp *http.Response, err error, guid string, state *syncstate.AccountState, result *UpsyncResult) bool {
	if err != nil {
		if httpErr, ok := asHTTPErr(err); ok && httpErr.Code == http.StatusMethodNotAllowed {
			e.logger.Warn("read-only collection rejected write", logging.String("guid", guid))
			result.Failed405++
			return true
		}
		return false
	}
	defer resp.Body.Close()

	if etag := resp.Header.Get("ETag"); etag != "" {
		state.ContactETags[guid] = etag
	} else {
		e.logger.Warn("upsync response carried no etag; next sync will detect it", logging.String("guid", guid))
	}
	result.Applied++
	return true
}

// asUpsyncError classifies an upsync failure: an HTTP error keeps its
// status, anything else is routed through ClassifyTransportError so a
// TLS/certificate failure is tagged CodeSSL per the account's
// ignore-SSL-errors policy instead of collapsing into a generic error.
func (e *Engine) asUpsyncError(err error) error {
	if err == nil {
		return carderr.New(carderr.CodeUnknown, fmt.Errorf("engine: upsync failed with no error detail"))
	}
	if httpErr, ok := asHTTPErr(err); ok {
		return carderr.FromHTTPStatus(httpErr.Code, err)
	}
	return carderr.ClassifyTransportError(err, e.cfg.IgnoreSSLErrors)
}

// asHTTPErr unwraps err looking for a *webdav.HTTPError, the only error
// type RequestGenerator calls produce that carries an HTTP status.
func asHTTPErr(err error) (*webdav.HTTPError, bool) {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if he, ok := err.(*webdav.HTTPError); ok {
			return he, true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
