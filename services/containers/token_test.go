package containers

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

type fakeResolver struct {
	known map[string]bool
	err   error
}

func (r *fakeResolver) Exists(_ context.Context, key string) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	return r.known[key], nil
}

func testCodec(t *testing.T, resolver Resolver, now time.Time) *Codec {
	t.Helper()
	codec, err := NewCodec([]byte("0123456789abcdef0123456789abcdef"), resolver)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	codec.now = func() time.Time { return now }
	return codec
}

func testContainer(expiresAt time.Time) Container {
	return Container{
		Location:  "containers/ga4/42/deadbeef.json",
		ExpiresAt: expiresAt,
	}
}

func TestCodecRoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(7 * 24 * time.Hour)
	container := testContainer(expires)
	codec := testCodec(t, nil, now)

	token, err := codec.Encode(container, 42)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	rec, err := codec.Decode(context.Background(), token, 42)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if rec.Location != container.Location {
		t.Fatalf("Location = %q, want %q", rec.Location, container.Location)
	}
	if rec.OrderID != 42 {
		t.Fatalf("OrderID = %d, want 42", rec.OrderID)
	}
	if !rec.ExpiresAt.Equal(expires) {
		t.Fatalf("ExpiresAt = %v, want %v", rec.ExpiresAt, expires)
	}
}

func TestCodecOrderMismatch(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	codec := testCodec(t, nil, now)

	token, err := codec.Encode(testContainer(now.Add(time.Hour)), 42)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if _, err := codec.Decode(context.Background(), token, 43); !errors.Is(err, ErrOrderMismatch) {
		t.Fatalf("Decode() error = %v, want ErrOrderMismatch", err)
	}
}

func TestCodecExpiryBoundary(t *testing.T) {
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expires := issued.Add(time.Hour)
	codec := testCodec(t, nil, issued)

	token, err := codec.Encode(testContainer(expires), 42)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	tests := []struct {
		name    string
		now     time.Time
		wantErr bool
	}{
		{"strictly before expiry", expires.Add(-time.Second), false},
		{"exactly at expiry", expires, true},
		{"after expiry", expires.Add(time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec.now = func() time.Time { return tt.now }
			_, err := codec.Decode(context.Background(), token, 42)
			if tt.wantErr {
				if !errors.Is(err, ErrTokenExpired) {
					t.Fatalf("Decode() error = %v, want ErrTokenExpired", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
		})
	}
}

func TestCodecTamperedPayload(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	codec := testCodec(t, nil, now)

	token, err := codec.Encode(testContainer(now.Add(time.Hour)), 42)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d segments", len(parts))
	}

	// Flip one byte of the claims segment; the signature must no longer
	// verify regardless of whether the result still base64-decodes.
	payload := []byte(parts[1])
	for i := range payload {
		altered := byte('A')
		if payload[i] == altered {
			altered = 'B'
		}
		mutated := append([]byte(nil), payload...)
		mutated[i] = altered
		candidate := parts[0] + "." + string(mutated) + "." + parts[2]

		_, err := codec.Decode(context.Background(), candidate, 42)
		if err == nil {
			t.Fatalf("tampered token at byte %d decoded successfully", i)
		}
		if !errors.Is(err, ErrInvalidSignature) && !errors.Is(err, ErrMalformedToken) {
			t.Fatalf("tampered token at byte %d: error = %v, want signature or malformed failure", i, err)
		}
	}
}

func TestCodecMalformedToken(t *testing.T) {
	codec := testCodec(t, nil, time.Now())

	for _, token := range []string{"", "garbage", "a.b", "!!!.???.###"} {
		if _, err := codec.Decode(context.Background(), token, 1); !errors.Is(err, ErrMalformedToken) {
			t.Fatalf("Decode(%q) error = %v, want ErrMalformedToken", token, err)
		}
	}
}

func TestCodecWrongKey(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	codec := testCodec(t, nil, now)

	other, err := NewCodec([]byte("ffffffffffffffffffffffffffffffff"), nil)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	token, err := other.Encode(testContainer(now.Add(time.Hour)), 42)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if _, err := codec.Decode(context.Background(), token, 42); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("Decode() error = %v, want ErrInvalidSignature", err)
	}
}

func TestCodecIncompleteRecord(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	codec := testCodec(t, nil, now)

	// A signed token whose record lacks a location is structurally valid
	// and correctly signed, but incomplete.
	token, err := codec.Encode(Container{ExpiresAt: now.Add(time.Hour)}, 42)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if _, err := codec.Decode(context.Background(), token, 42); !errors.Is(err, ErrIncompleteToken) {
		t.Fatalf("Decode() error = %v, want ErrIncompleteToken", err)
	}
}

func TestCodecArtifactMissing(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	container := testContainer(now.Add(time.Hour))

	tests := []struct {
		name     string
		resolver *fakeResolver
	}{
		{"not in store", &fakeResolver{known: map[string]bool{}}},
		{"store unreachable", &fakeResolver{err: errors.New("timeout")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec := testCodec(t, tt.resolver, now)
			token, err := codec.Encode(container, 42)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if _, err := codec.Decode(context.Background(), token, 42); !errors.Is(err, ErrArtifactMissing) {
				t.Fatalf("Decode() error = %v, want ErrArtifactMissing", err)
			}
		})
	}
}

func TestCodecResolverHit(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	container := testContainer(now.Add(time.Hour))
	resolver := &fakeResolver{known: map[string]bool{container.Location: true}}
	codec := testCodec(t, resolver, now)

	token, err := codec.Encode(container, 42)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if _, err := codec.Decode(context.Background(), token, 42); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
}

func TestMintURL(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	container := testContainer(now.Add(time.Hour))
	codec := testCodec(t, nil, now)

	link, err := codec.MintURL("https://downloads.example.com/", container, 42)
	if err != nil {
		t.Fatalf("MintURL() error = %v", err)
	}

	parsed, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse minted url: %v", err)
	}
	if parsed.Query().Get("order_id") != "42" {
		t.Fatalf("order_id = %q", parsed.Query().Get("order_id"))
	}

	rec, err := codec.Decode(context.Background(), parsed.Query().Get("download"), 42)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if rec.Location != container.Location {
		t.Fatalf("Location = %q, want %q", rec.Location, container.Location)
	}
}

func TestNewCodecShortKey(t *testing.T) {
	if _, err := NewCodec([]byte("short"), nil); err == nil {
		t.Fatal("NewCodec() accepted a short key")
	}
}

func TestMintedTokensIndependent(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	container := testContainer(now.Add(time.Hour))
	codec := testCodec(t, nil, now)

	first, err := codec.Encode(container, 42)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	second, err := codec.Encode(container, 42)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	// Re-minting must not invalidate earlier tokens.
	for _, token := range []string{first, second} {
		if _, err := codec.Decode(context.Background(), token, 42); err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
	}
}
