package syncer

import (
	"context"
	"fmt"

	"github.com/carddavsync/engine/carddav"
	"github.com/carddavsync/engine/carderr"
	"github.com/carddavsync/engine/engine"
	"github.com/carddavsync/engine/syncstate"
	"github.com/carddavsync/engine/vcard"
)

// Syncer is the façade spec.md §2 describes: it owns one account's
// end-to-end sync round, translating between the engine's GUID-keyed
// Result/upsync shapes and a ContactStore, and supplying the default
// significant_differences predicate unless the embedder overrides it.
type Syncer struct {
	eng              *engine.Engine
	store            ContactStore
	significantDiffs engine.SignificantDifferences
}

// New builds a Syncer. If significantDiffs is nil, DefaultSignificantDifferences
// is used (spec.md §9 Resolved Open Question #3).
func New(eng *engine.Engine, store ContactStore, significantDiffs engine.SignificantDifferences) *Syncer {
	if significantDiffs == nil {
		significantDiffs = DefaultSignificantDifferences
	}
	return &Syncer{eng: eng, store: store, significantDiffs: significantDiffs}
}

// Sync runs one full round for the account: discovery + downsync, applying
// the remote delta to the store, then upsyncing the store's local A/M/R
// for the default address book (spec.md §6's remote_changes +
// upsync_completed callbacks, rendered here as a single synchronous call
// returning once both halves are done).
func (s *Syncer) Sync(ctx context.Context, state *syncstate.AccountState) (*engine.Result, *engine.UpsyncResult, error) {
	result, err := s.eng.Run(ctx, state)
	if err != nil {
		return nil, nil, err
	}

	s.resolveLocalIDs(result.Additions)
	s.resolveLocalIDs(result.Modifications)
	s.resolveLocalIDs(result.Removals)

	if err := s.store.ApplyRemote(result.Additions, result.Modifications, result.Removals); err != nil {
		return result, nil, carderr.New(carderr.CodeUnknown, fmt.Errorf("syncer: applying remote changes: %w", err))
	}

	if result.DefaultAddressBookURL == "" {
		return result, &engine.UpsyncResult{}, nil
	}

	localAdditions, localModifications, localRemovals, err := s.store.LocalChanges()
	if err != nil {
		return result, nil, carderr.New(carderr.CodeUnknown, fmt.Errorf("syncer: reading local changes: %w", err))
	}

	additions := make([]engine.LocalAddition, 0, len(localAdditions))
	for _, lc := range localAdditions {
		additions = append(additions, engine.LocalAddition{Contact: lc.Contact, Unsupported: lc.Unsupported})
	}
	modifications := make([]engine.LocalModification, 0, len(localModifications))
	for _, lc := range localModifications {
		modifications = append(modifications, engine.LocalModification{GUID: lc.GUID, Contact: lc.Contact, Unsupported: lc.Unsupported})
	}
	removals := make([]engine.LocalRemoval, 0, len(localRemovals))
	for _, lc := range localRemovals {
		removals = append(removals, engine.LocalRemoval{GUID: lc.GUID})
	}

	upsyncResult, err := s.eng.Upsync(ctx, result.ResolvedBaseURL, state, result.DefaultAddressBookURL,
		additions, modifications, removals, result.ServerAddModsByUID, s.significantDiffs)
	if err != nil {
		return result, nil, err
	}
	return result, upsyncResult, nil
}

// ListAddressBooks exposes discovery-only mode (spec.md §6's
// addressbooks_list callback) through the façade's single entry point.
func (s *Syncer) ListAddressBooks(ctx context.Context) ([]carddav.AddressBookInfo, error) {
	return s.eng.ListAddressBooks(ctx)
}

// resolveLocalIDs implements spec.md §4.1 step 7: "if the GUID already maps
// to a local id, set that id on the contact", so a store applying these
// changes can tell a brand-new downsynced contact from one it previously
// upsynced itself and is now seeing come back down.
func (s *Syncer) resolveLocalIDs(contacts []*vcard.Contact) {
	for _, c := range contacts {
		if id, ok := s.store.ResolveLocalID(c.GUID); ok {
			c.LocalID = id
		}
	}
}
