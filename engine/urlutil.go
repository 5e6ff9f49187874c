package engine

import "net/url"

func pathOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Path, nil
}

func withPath(base, path string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path
	return u.String()
}

// absolutize resolves ref (absolute or relative) against base, returning
// a fully qualified URL. Used for the Location header of a discovery
// redirect (spec.md §4.1 step 2), which servers are free to send as
// either form.
func absolutize(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
