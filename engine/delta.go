package engine

import (
	"context"

	"github.com/carddavsync/engine/carddav"
	"github.com/carddavsync/engine/carderr"
	"github.com/carddavsync/engine/logging"
	"github.com/carddavsync/engine/syncstate"
	"github.com/carddavsync/engine/vcard"
)

// downsyncAll implements spec.md §4.1 steps 5-7 across every address book,
// coalescing their A/M/R into a single Result (the "downsync_requests
// counter reaching zero" event of §5, rendered here as the end of a plain
// sequential loop: every outstanding request for one address book is
// awaited before the next begins, which trivially satisfies "no two
// callbacks observe the sync-state maps simultaneously").
func (e *Engine) downsyncAll(ctx context.Context, base string, books []carddav.AddressBookInfo, state *syncstate.AccountState) (*Result, error) {
	result := &Result{ServerAddModsByUID: make(map[string]*vcard.Contact)}

	for _, info := range books {
		additions, modifications, removals, err := e.downsyncOne(ctx, base, info, state, result)
		if err != nil {
			return nil, err
		}
		if result.DefaultAddressBookURL == "" && (len(additions)+len(modifications)+len(removals) > 0) {
			result.DefaultAddressBookURL = info.URL
		}
		result.Additions = append(result.Additions, additions...)
		result.Modifications = append(result.Modifications, modifications...)
		result.Removals = append(result.Removals, removals...)
	}

	if e.metrics != nil {
		e.metrics.ObserveAMR("down", len(result.Additions), len(result.Modifications), len(result.Removals))
	}
	return result, nil
}

// downsyncOne fetches and applies the delta for a single address book.
func (e *Engine) downsyncOne(ctx context.Context, base string, info carddav.AddressBookInfo, state *syncstate.AccountState, result *Result) (additions, modifications, removals []*vcard.Contact, err error) {
	changed, newSyncToken, exhaustive, noChanges, err := e.selectDelta(ctx, base, info, state)
	if info.CTag != "" {
		state.AddressBookCTags[info.URL] = info.CTag
	}
	if err != nil {
		return nil, nil, nil, err
	}
	if noChanges {
		return nil, nil, nil, nil
	}

	toFetch, removedGUIDs := e.classify(changed, info.URL, exhaustive, state)

	for _, guid := range removedGUIDs {
		removals = append(removals, &vcard.Contact{GUID: guid})
		state.RemoveGUID(info.URL, guid)
	}

	if len(toFetch) > 0 {
		uris := make([]string, 0, len(toFetch))
		for _, ci := range toFetch {
			uris = append(uris, ci.URI)
		}

		e.recordRequest("REPORT")
		ms, err := e.reqGen.ContactMultiget(ctx, base, info.URL, uris)
		if err != nil {
			if _, ok := asHTTPErr(err); ok {
				return nil, nil, nil, carderr.New(carderr.CodeUnknown, err)
			}
			return nil, nil, nil, carderr.ClassifyTransportError(err, e.cfg.IgnoreSSLErrors)
		}
		fetched, err := e.parser.ParseContactData(ms)
		if err != nil {
			return nil, nil, nil, carderr.New(carderr.CodeMissingData, err)
		}

		for _, ci := range toFetch {
			full, ok := fetched[ci.URI]
			if !ok {
				e.logger.Warn("multiget response missing requested URI", logging.String("uri", ci.URI))
				continue
			}
			contact, unsupported, err := e.converter.Import(full.VCard)
			if err != nil {
				e.logger.Warn("skipping unparseable vcard", logging.String("uri", ci.URI), logging.Err(err))
				continue
			}
			if contact.Name.Value == (vcard.Name{}) {
				e.logger.Warn("imported contact has no name data", logging.String("uri", ci.URI))
			}

			serverUID := contact.GUID
			guid := syncstate.BuildGUID(e.cfg.AccountID, info.URL, serverUID)
			contact.GUID = guid

			state.ContactUIDs[guid] = serverUID
			state.ContactURIs[guid] = full.URI
			state.ContactETags[guid] = full.ETag
			state.ContactUnsupportedProperties[guid] = unsupported
			state.AddGUID(info.URL, guid)

			result.ServerAddModsByUID[serverUID] = contact

			if ci.Kind == carddav.Addition {
				additions = append(additions, contact)
			} else {
				modifications = append(modifications, contact)
			}
		}
	}

	state.AddressBookSyncTokens[info.URL] = newSyncToken
	return additions, modifications, removals, nil
}

// selectDelta implements spec.md §4.1 step 5's strategy selection
// (corrected per SPEC_FULL.md §9 Resolved Open Question #2: the CTag is
// cached but never itself drives selection once a sync token is present).
func (e *Engine) selectDelta(ctx context.Context, base string, info carddav.AddressBookInfo, state *syncstate.AccountState) (changed []carddav.ContactInfo, newSyncToken string, exhaustive, noChanges bool, err error) {
	cachedSyncToken := state.AddressBookSyncTokens[info.URL]
	cachedCTag := state.AddressBookCTags[info.URL]

	if info.SyncToken != "" {
		if cachedSyncToken == info.SyncToken && cachedSyncToken != "" {
			return nil, info.SyncToken, false, true, nil
		}
		if cachedSyncToken != "" {
			e.recordRequest("REPORT")
			ms, rerr := e.reqGen.SyncTokenDelta(ctx, base, info.URL, cachedSyncToken)
			if rerr == nil {
				c, st, perr := e.parser.ParseSyncTokenDelta(ms)
				if perr == nil {
					if st == "" {
						st = info.SyncToken
					}
					return c, st, false, false, nil
				}
			}
			// Server-forgotten sync token (spec.md §7): degrade
			// silently to a full ETag listing.
			e.logger.Warn("sync token rejected by server, falling back to full etag listing",
				logging.String("addressbook", info.URL))
		}
		// First-time sync for this address book: no prior token to
		// diff against, so bootstrap via a full listing.
		c, ferr := e.fullETagDiff(ctx, base, info)
		if ferr != nil {
			return nil, "", false, false, ferr
		}
		return c, info.SyncToken, true, false, nil
	}

	if info.CTag != "" && cachedCTag != "" && cachedCTag == info.CTag {
		return nil, "", false, true, nil
	}

	c, ferr := e.fullETagDiff(ctx, base, info)
	if ferr != nil {
		return nil, "", false, false, ferr
	}
	return c, "", true, false, nil
}

func (e *Engine) fullETagDiff(ctx context.Context, base string, info carddav.AddressBookInfo) ([]carddav.ContactInfo, error) {
	e.recordRequest("REPORT")
	ms, err := e.reqGen.ContactETags(ctx, base, info.URL)
	if err != nil {
		if _, ok := asHTTPErr(err); ok {
			return nil, carderr.New(carderr.CodeUnknown, err)
		}
		return nil, carderr.ClassifyTransportError(err, e.cfg.IgnoreSSLErrors)
	}
	c, err := e.parser.ParseContactETags(ms)
	if err != nil {
		return nil, carderr.New(carderr.CodeMissingData, err)
	}
	return c, nil
}

// classify turns a raw ContactInfo delta into the set of URIs that need a
// multiget fetch (additions + modifications) and the GUIDs of resources
// that are gone. When exhaustive is true (manual ETag-diff path), changed
// is the full current listing and any previously known URI absent from it
// is implicitly a removal; when false (sync-token path), removals are
// signaled explicitly via Deletion entries and absence means "unchanged,"
// not "gone" (spec.md §4.1 step 5).
func (e *Engine) classify(changed []carddav.ContactInfo, addressBookURL string, exhaustive bool, state *syncstate.AccountState) (toFetch []carddav.ContactInfo, removedGUIDs []string) {
	knownURIs := make(map[string]string, len(state.AddressBookContactGUIDs[addressBookURL]))
	for guid := range state.AddressBookContactGUIDs[addressBookURL] {
		if uri, ok := state.ContactURIs[guid]; ok {
			knownURIs[uri] = guid
		}
	}

	seen := make(map[string]bool, len(changed))
	for _, ci := range changed {
		if ci.Kind == carddav.Deletion {
			if guid, ok := knownURIs[ci.URI]; ok {
				removedGUIDs = append(removedGUIDs, guid)
			}
			continue
		}
		seen[ci.URI] = true

		guid, known := knownURIs[ci.URI]
		if !known {
			toFetch = append(toFetch, carddav.ContactInfo{URI: ci.URI, ETag: ci.ETag, Kind: carddav.Addition})
			continue
		}
		if state.ContactETags[guid] == ci.ETag {
			continue // unchanged; a manual-diff listing repeats every resource.
		}
		toFetch = append(toFetch, carddav.ContactInfo{URI: ci.URI, ETag: ci.ETag, Kind: carddav.Modification})
	}

	if exhaustive {
		for uri, guid := range knownURIs {
			if !seen[uri] {
				removedGUIDs = append(removedGUIDs, guid)
			}
		}
	}
	return toFetch, removedGUIDs
}
