package engine

import (
	"context"
	"fmt"
	"net/http"

	"github.com/carddavsync/engine/carddav"
	"github.com/carddavsync/engine/carderr"
	"github.com/carddavsync/engine/internal/webdav"
)

const wellKnownPath = "/.well-known/carddav"

// discover runs the full state machine of spec.md §4.1 steps 1-4: it
// returns the (possibly redirect-adjusted) base URL and the list of
// address books discovered under the user's home set.
func (e *Engine) discover(ctx context.Context) (string, []carddav.AddressBookInfo, error) {
	base := e.cfg.ServerURL

	if e.cfg.AddressBookPath != "" {
		books, ok, err := e.discoverFromHint(ctx, base)
		if err != nil {
			return "", nil, err
		}
		if ok {
			return base, books, nil
		}
		return "", nil, carderr.New(carderr.CodeMissingData,
			fmt.Errorf("engine: supplied address-book path %q named neither an address book nor a home-set", e.cfg.AddressBookPath))
	}

	newBase, principalPath, shortcut, err := e.discoverPrincipal(ctx, base)
	if err != nil {
		return "", nil, err
	}
	if shortcut != nil {
		return newBase, shortcut, nil
	}

	homePath, err := e.discoverHomeSet(ctx, newBase, principalPath)
	if err != nil {
		return "", nil, err
	}

	books, err := e.discoverAddressBooks(ctx, newBase, homePath)
	if err != nil {
		return "", nil, err
	}
	return newBase, books, nil
}

// discoverFromHint implements spec.md §4.1 step 1: treat the supplied
// path first as an address book itself, then once as a home-set.
func (e *Engine) discoverFromHint(ctx context.Context, base string) ([]carddav.AddressBookInfo, bool, error) {
	e.recordRequest("PROPFIND")
	if ms, err := e.reqGen.AddressbookSelfInformation(ctx, base, e.cfg.AddressBookPath); err == nil {
		if books, perr := e.parser.ParseAddressbookInformation(ms, ""); perr == nil && len(books) > 0 {
			return books, true, nil
		}
	}

	e.recordRequest("PROPFIND")
	ms, err := e.reqGen.AddressbooksInformation(ctx, base, e.cfg.AddressBookPath)
	if err != nil {
		return nil, false, nil
	}
	queriedPath, _ := webdav.CanonicalPath(e.cfg.AddressBookPath)
	books, err := e.parser.ParseAddressbookInformation(ms, queriedPath)
	if err != nil || len(books) == 0 {
		return nil, false, nil
	}
	return books, true, nil
}

// discoverPrincipal implements spec.md §4.1 step 2, including the
// well-known/root fallback chain and the redirect-adoption/abort rules of
// §7. It returns the (possibly updated) base URL, the discovered
// principal path, and — for servers that fold address-book-home-set data
// into the principal response — a short-circuit list of address books.
func (e *Engine) discoverPrincipal(ctx context.Context, base string) (newBase string, principalPath string, shortcut []carddav.AddressBookInfo, err error) {
	origPath, err := pathOf(base)
	if err != nil {
		return "", "", nil, carderr.New(carderr.CodeUnknown, err)
	}

	atWellKnown := origPath == "" || origPath == "/"
	target := base
	if atWellKnown {
		target = withPath(base, wellKnownPath)
	}

	ms, adoptedBase, err := e.propfindPrincipal(ctx, base, target, atWellKnown)
	if err != nil {
		if httpErr, ok := asRecoverableDiscoveryError(err); ok && !atWellKnown {
			// Step 2: 404/405 on a non-well-known path retries
			// well-known first, then root.
			wellKnownTarget := withPath(base, wellKnownPath)
			ms2, adoptedBase2, err2 := e.propfindPrincipal(ctx, base, wellKnownTarget, true)
			if err2 == nil {
				ms, adoptedBase = ms2, adoptedBase2
			} else if _, ok2 := asRecoverableDiscoveryError(err2); ok2 {
				rootTarget := withPath(base, "/")
				ms3, adoptedBase3, err3 := e.propfindPrincipal(ctx, base, rootTarget, false)
				if err3 != nil {
					return "", "", nil, carderr.FromHTTPStatus(httpErr, fmt.Errorf("engine: discovery exhausted well-known and root fallbacks: %w", err3))
				}
				ms, adoptedBase = ms3, adoptedBase3
			} else {
				return "", "", nil, err2
			}
		} else if httpErr, ok := asRecoverableDiscoveryError(err); ok && atWellKnown {
			// Step 2: 404/405 at the well-known URI retries root.
			rootTarget := withPath(base, "/")
			ms2, adoptedBase2, err2 := e.propfindPrincipal(ctx, base, rootTarget, false)
			if err2 != nil {
				return "", "", nil, carderr.FromHTTPStatus(httpErr, fmt.Errorf("engine: discovery exhausted root fallback: %w", err2))
			}
			ms, adoptedBase = ms2, adoptedBase2
		} else {
			return "", "", nil, err
		}
	}

	result, err := e.parser.ParseUserPrincipal(ms)
	if err != nil {
		return "", "", nil, carderr.New(carderr.CodeMissingData, err)
	}
	return adoptedBase, result.PrincipalPath, result.AddressBooks, nil
}

// propfindPrincipal issues one PROPFIND current-user-principal at target
// and resolves the well-known redirect rules of spec.md §4.1 step 2 / §7:
// a same-path redirect is circular (abort 301); a redirect from a
// non-well-known path is unsafe (abort 301); a cross-path redirect from
// the well-known URI is adopted as the new base.
func (e *Engine) propfindPrincipal(ctx context.Context, base, target string, atWellKnown bool) (*webdav.Multistatus, string, error) {
	e.recordRequest("PROPFIND")
	resp, err := e.reqGen.CurrentUserInformationRaw(ctx, target)
	if err != nil {
		return nil, "", carderr.ClassifyTransportError(err, e.cfg.IgnoreSSLErrors)
	}

	if resp.StatusCode/100 == 3 {
		resp.Body.Close()
		location := resp.Header.Get("Location")
		if location == "" {
			return nil, "", carderr.FromHTTPStatus(resp.StatusCode, fmt.Errorf("engine: redirect with no Location header"))
		}
		targetPath, _ := pathOf(target)
		locationPath, _ := pathOf(absolutize(target, location))
		if !atWellKnown {
			return nil, "", carderr.FromHTTPStatus(http.StatusMovedPermanently,
				fmt.Errorf("engine: unsafe redirect from non-well-known path %s to %s", target, location))
		}
		if webdav.SamePath(targetPath, locationPath) {
			return nil, "", carderr.FromHTTPStatus(http.StatusMovedPermanently,
				fmt.Errorf("engine: circular redirect at well-known URI %s", target))
		}
		newBase := absolutize(target, location)
		return e.propfindPrincipal(ctx, newBase, newBase, false)
	}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed {
		resp.Body.Close()
		return nil, "", &recoverableDiscoveryError{status: resp.StatusCode}
	}

	if resp.StatusCode/100 != 2 {
		resp.Body.Close()
		return nil, "", carderr.FromHTTPStatus(resp.StatusCode, fmt.Errorf("engine: discovery PROPFIND failed with status %d", resp.StatusCode))
	}

	ms, err := webdav.DecodeMultistatus(resp)
	if err != nil {
		return nil, "", carderr.New(carderr.CodeUnknown, err)
	}
	return ms, base, nil
}

// discoverHomeSet implements spec.md §4.1 step 3.
func (e *Engine) discoverHomeSet(ctx context.Context, base, principalPath string) (string, error) {
	e.recordRequest("PROPFIND")
	ms, err := e.reqGen.AddressbookURLs(ctx, base, principalPath)
	if err != nil {
		if _, ok := asHTTPErr(err); ok {
			return "", carderr.New(carderr.CodeUnknown, err)
		}
		return "", carderr.ClassifyTransportError(err, e.cfg.IgnoreSSLErrors)
	}
	homePath, err := e.parser.ParseAddressbookHome(ms)
	if err != nil {
		return "", carderr.New(carderr.CodeMissingData, err)
	}
	return homePath, nil
}

// discoverAddressBooks implements spec.md §4.1 step 4.
func (e *Engine) discoverAddressBooks(ctx context.Context, base, homePath string) ([]carddav.AddressBookInfo, error) {
	e.recordRequest("PROPFIND")
	ms, err := e.reqGen.AddressbooksInformation(ctx, base, homePath)
	if err != nil {
		if _, ok := asHTTPErr(err); ok {
			return nil, carderr.New(carderr.CodeUnknown, err)
		}
		return nil, carderr.ClassifyTransportError(err, e.cfg.IgnoreSSLErrors)
	}
	queriedPath, _ := webdav.CanonicalPath(homePath)
	books, err := e.parser.ParseAddressbookInformation(ms, queriedPath)
	if err != nil {
		return nil, carderr.New(carderr.CodeMissingData, err)
	}
	return books, nil
}

// recoverableDiscoveryError marks a 404/405 that the caller should retry
// with the next fallback URL rather than treat as fatal.
type recoverableDiscoveryError struct{ status int }

func (e *recoverableDiscoveryError) Error() string {
	return fmt.Sprintf("engine: discovery PROPFIND returned %d", e.status)
}

func asRecoverableDiscoveryError(err error) (int, bool) {
	if rde, ok := err.(*recoverableDiscoveryError); ok {
		return rde.status, true
	}
	return 0, false
}
