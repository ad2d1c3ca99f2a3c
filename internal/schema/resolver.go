package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/biobroker/biobroker/internal/jsondoc"
)

// Fetcher retrieves the raw bytes of a URL. The template builder and the
// $ref resolver share one so callers control transport, retries, and auth.
type Fetcher func(ctx context.Context, url string) ([]byte, error)

// strippedTopLevel keys are removed from every schema document before
// descriptor extraction.
var strippedTopLevel = []string{"describedBy", "schema_version", "schema_type", "provenance"}

// Resolver expands every $ref in a schema document, fetching cross-document
// references through the loader callback. Resolved documents are memoized by
// their $id so shared and cyclic references resolve to one node.
type Resolver struct {
	fetch Fetcher
	cache map[string]*jsondoc.Node
}

// NewResolver creates a resolver around a loader callback
func NewResolver(fetch Fetcher) *Resolver {
	return &Resolver{
		fetch: fetch,
		cache: make(map[string]*jsondoc.Node),
	}
}

// Resolve expands all references in doc, in place, and returns it. If the
// document carries an $id and was resolved before, the memoized node is
// returned instead.
func (r *Resolver) Resolve(ctx context.Context, doc *jsondoc.Node) (*jsondoc.Node, error) {
	if id := documentID(doc); id != "" {
		if cached, ok := r.cache[id]; ok {
			return cached, nil
		}
		// Register before walking so cyclic references land on this node.
		r.cache[id] = doc
	}
	for _, key := range strippedTopLevel {
		doc.Delete(key)
	}
	if err := r.expand(ctx, doc, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// expand walks node replacing every {"$ref": ...} object with its target
func (r *Resolver) expand(ctx context.Context, root, node *jsondoc.Node) error {
	for _, key := range node.Keys() {
		value, _ := node.Get(key)
		replaced, err := r.expandValue(ctx, root, value)
		if err != nil {
			return err
		}
		node.Set(key, replaced)
	}
	return nil
}

func (r *Resolver) expandValue(ctx context.Context, root *jsondoc.Node, value any) (any, error) {
	switch v := value.(type) {
	case *jsondoc.Node:
		if ref, ok := v.GetString("$ref"); ok {
			target, err := r.resolveRef(ctx, root, ref)
			if err != nil {
				return nil, err
			}
			if v.Len() == 1 {
				return target, nil
			}
			return overlaySiblings(target, v), nil
		}
		if err := r.expand(ctx, root, v); err != nil {
			return nil, err
		}
		return v, nil
	case []any:
		for i, item := range v {
			replaced, err := r.expandValue(ctx, root, item)
			if err != nil {
				return nil, err
			}
			v[i] = replaced
		}
		return v, nil
	default:
		return value, nil
	}
}

// overlaySiblings applies annotation keys carried beside a $ref (such as
// user_friendly or description) over the referenced schema. The copy is
// shallow: subtrees stay shared with the memoized target, which may be
// cyclic.
func overlaySiblings(target, ref *jsondoc.Node) *jsondoc.Node {
	merged := jsondoc.New()
	for _, key := range target.Keys() {
		value, _ := target.Get(key)
		merged.Set(key, value)
	}
	for _, key := range ref.Keys() {
		if key == "$ref" {
			continue
		}
		value, _ := ref.Get(key)
		merged.Set(key, value)
	}
	return merged
}

// resolveRef loads and resolves the target of one reference. References may
// point into the current document (#/definitions/x), to another document, or
// to a fragment of another document.
func (r *Resolver) resolveRef(ctx context.Context, root *jsondoc.Node, ref string) (*jsondoc.Node, error) {
	target := root
	location, fragment, _ := strings.Cut(ref, "#")
	if location != "" {
		if cached, ok := r.cache[location]; ok {
			target = cached
		} else {
			data, err := r.fetch(ctx, location)
			if err != nil {
				return nil, fmt.Errorf("failed to load referenced schema %s: %w", location, err)
			}
			doc, err := jsondoc.Parse(data)
			if err != nil {
				return nil, fmt.Errorf("referenced schema %s: %w", location, err)
			}
			if documentID(doc) == "" {
				// Key by the reference location when the target carries no $id.
				r.cache[location] = doc
			}
			target, err = r.Resolve(ctx, doc)
			if err != nil {
				return nil, err
			}
		}
	}
	return resolveFragment(target, fragment, ref)
}

// resolveFragment walks a JSON-pointer fragment (e.g. /definitions/x)
func resolveFragment(doc *jsondoc.Node, fragment, ref string) (*jsondoc.Node, error) {
	current := doc
	for _, segment := range strings.Split(fragment, "/") {
		if segment == "" {
			continue
		}
		child, ok := current.GetNode(segment)
		if !ok {
			return nil, fmt.Errorf("reference %q: segment %q not found", ref, segment)
		}
		current = child
	}
	return current, nil
}
