// Package kv is the namespaced key-value persistence used by every compliance
// component. Keys are composite tuples; there are no range scans, so
// enumeration goes through explicit set indexes maintained in the same unit
// of work as the primary record.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"gatekeeper/pkg/platform/sentinel"
)

// Store is a transactional key-value store.
//
// RunInTx executes fn as one atomic unit: all writes made through ctx commit
// together or not at all. Calls made with a ctx that is already inside a unit
// join it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Key builds a composite key from a namespace and entity identifiers.
// Parts are escaped so identifiers can never collide across tuple positions.
func Key(namespace string, parts ...any) string {
	var b strings.Builder
	b.WriteString(namespace)
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(fmt.Sprint(p)))
	}
	return b.String()
}

// Has reports whether key is present.
func Has(ctx context.Context, s Store, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// GetJSON decodes the value at key into dst. It returns false, nil when the
// key is absent.
func GetJSON(ctx context.Context, s Store, key string, dst any) (bool, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// PutJSON encodes v and stores it at key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, key, raw)
}

// SetMembers returns the sorted members of the index set at key.
func SetMembers(ctx context.Context, s Store, key string) ([]string, error) {
	var members []string
	if _, err := GetJSON(ctx, s, key, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// SetAdd inserts member into the index set at key. It reports whether the
// member was newly added.
func SetAdd(ctx context.Context, s Store, key, member string) (bool, error) {
	members, err := SetMembers(ctx, s, key)
	if err != nil {
		return false, err
	}
	i := sort.SearchStrings(members, member)
	if i < len(members) && members[i] == member {
		return false, nil
	}
	members = append(members, "")
	copy(members[i+1:], members[i:])
	members[i] = member
	return true, PutJSON(ctx, s, key, members)
}

// SetRemove deletes member from the index set at key. Empty sets are removed.
func SetRemove(ctx context.Context, s Store, key, member string) (bool, error) {
	members, err := SetMembers(ctx, s, key)
	if err != nil {
		return false, err
	}
	i := sort.SearchStrings(members, member)
	if i >= len(members) || members[i] != member {
		return false, nil
	}
	members = append(members[:i], members[i+1:]...)
	if len(members) == 0 {
		return true, s.Delete(ctx, key)
	}
	return true, PutJSON(ctx, s, key, members)
}

// ListAppend appends member to the insertion-ordered list at key unless it is
// already present.
func ListAppend(ctx context.Context, s Store, key, member string) (bool, error) {
	var items []string
	if _, err := GetJSON(ctx, s, key, &items); err != nil {
		return false, err
	}
	for _, it := range items {
		if it == member {
			return false, nil
		}
	}
	return true, PutJSON(ctx, s, key, append(items, member))
}

// ListRemove removes member from the ordered list at key, keeping order.
func ListRemove(ctx context.Context, s Store, key, member string) (bool, error) {
	var items []string
	if _, err := GetJSON(ctx, s, key, &items); err != nil {
		return false, err
	}
	out := items[:0]
	removed := false
	for _, it := range items {
		if it == member {
			removed = true
			continue
		}
		out = append(out, it)
	}
	if !removed {
		return false, nil
	}
	return true, PutJSON(ctx, s, key, out)
}

// List returns the ordered list at key.
func List(ctx context.Context, s Store, key string) ([]string, error) {
	var items []string
	if _, err := GetJSON(ctx, s, key, &items); err != nil {
		return nil, err
	}
	return items, nil
}
