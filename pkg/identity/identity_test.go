package identity_test

import (
	"crypto"
	"errors"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/faultline/pkg/identity"
)

const (
	kindPair  identity.Kind = "pair"
	kindOther identity.Kind = "other"
)

// pair is a minimal hashable with an optional field.
type pair struct {
	kind  identity.Kind
	left  string
	right *string
	count int64
}

func (p pair) Kind() identity.Kind { return p.kind }

func (p pair) WriteCanonical(e *identity.Encoder) {
	e.String(p.left)
	if p.right == nil {
		e.Null()
	} else {
		e.String(*p.right)
	}
	e.Int(p.count)
}

func strPtr(s string) *string { return &s }

func newTestHasher() *identity.Hasher {
	reg, err := identity.NewRegistry(map[identity.Kind]uint16{
		kindPair:  1,
		kindOther: 2,
	})
	Expect(err).NotTo(HaveOccurred())

	h, err := identity.NewHasher(identity.DefaultAlgorithm, reg)
	Expect(err).NotTo(HaveOccurred())
	return h
}

var _ = Describe("Hasher", func() {
	var hasher *identity.Hasher

	BeforeEach(func() {
		hasher = newTestHasher()
	})

	It("produces identical hashes for identical content", func() {
		a := pair{kind: kindPair, left: "a", right: strPtr("b"), count: 1}
		b := pair{kind: kindPair, left: "a", right: strPtr("b"), count: 1}

		Expect(hasher.Sum(a)).To(Equal(hasher.Sum(b)))
	})

	It("distinguishes an absent field from an empty one", func() {
		absent := pair{kind: kindPair, left: "a"}
		empty := pair{kind: kindPair, left: "a", right: strPtr("")}

		Expect(hasher.Sum(absent)).NotTo(Equal(hasher.Sum(empty)))
	})

	It("does not let string boundaries shift between fields", func() {
		a := pair{kind: kindPair, left: "ab", right: strPtr("c")}
		b := pair{kind: kindPair, left: "a", right: strPtr("bc")}

		Expect(hasher.Sum(a)).NotTo(Equal(hasher.Sum(b)))
	})

	It("includes the kind tag", func() {
		a := pair{kind: kindPair, left: "a"}
		b := pair{kind: kindOther, left: "a"}

		Expect(hasher.Sum(a)).NotTo(Equal(hasher.Sum(b)))
	})

	It("panics on unregistered kinds", func() {
		Expect(func() {
			hasher.Sum(pair{kind: "unknown"})
		}).To(Panic())
	})

	It("supports longer digests by truncation", func() {
		reg, err := identity.NewRegistry(map[identity.Kind]uint16{kindPair: 1})
		Expect(err).NotTo(HaveOccurred())

		h, err := identity.NewHasher(crypto.SHA256, reg)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.Sum(pair{kind: kindPair, left: "x"}).IsZero()).To(BeFalse())
	})

	It("rejects unavailable algorithms at construction", func() {
		reg, err := identity.NewRegistry(map[identity.Kind]uint16{kindPair: 1})
		Expect(err).NotTo(HaveOccurred())

		_, err = identity.NewHasher(crypto.Hash(0), reg)
		Expect(errors.Is(err, identity.ErrAlgorithmUnavailable)).To(BeTrue())
	})
})

var _ = Describe("ParseAlgorithm", func() {
	It("defaults to MD5", func() {
		alg, err := identity.ParseAlgorithm("")
		Expect(err).NotTo(HaveOccurred())
		Expect(alg).To(Equal(crypto.MD5))
	})

	It("is case insensitive", func() {
		alg, err := identity.ParseAlgorithm("SHA256")
		Expect(err).NotTo(HaveOccurred())
		Expect(alg).To(Equal(crypto.SHA256))
	})

	It("rejects unknown names", func() {
		_, err := identity.ParseAlgorithm("crc32")
		Expect(err).To(MatchError(identity.ErrAlgorithmUnavailable))
	})
})

var _ = Describe("Registry", func() {
	It("rejects shared tags", func() {
		_, err := identity.NewRegistry(map[identity.Kind]uint16{kindPair: 1, kindOther: 1})
		Expect(err).To(HaveOccurred())
	})

	It("rejects an empty table", func() {
		_, err := identity.NewRegistry(nil)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Hash", func() {
	It("round trips through its string form", func() {
		h := newTestHasher().Sum(pair{kind: kindPair, left: "round"})

		parsed, err := identity.ParseHash(h.String())
		Expect(err).NotTo(HaveOccurred())
		Expect(parsed).To(Equal(h))
		Expect(h.String()).To(HaveLen(32))
	})

	It("rejects malformed strings", func() {
		_, err := identity.ParseHash("abc")
		Expect(err).To(HaveOccurred())

		_, err = identity.ParseHash("zz000000000000000000000000000000")
		Expect(err).To(HaveOccurred())
	})

	It("marshals as text", func() {
		h := newTestHasher().Sum(pair{kind: kindPair, left: "text"})
		text, err := h.MarshalText()
		Expect(err).NotTo(HaveOccurred())

		var back identity.Hash
		Expect(back.UnmarshalText(text)).To(Succeed())
		Expect(back).To(Equal(h))
	})
})

var _ = Describe("Memo", func() {
	It("computes once under concurrent first access", func() {
		var (
			memo  identity.Memo
			calls atomic.Int32
			wg    sync.WaitGroup
		)
		want := newTestHasher().Sum(pair{kind: kindPair, left: "memo"})

		results := make([]identity.Hash, 32)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = memo.Get(func() identity.Hash {
					calls.Add(1)
					return want
				})
			}(i)
		}
		wg.Wait()

		Expect(calls.Load()).To(Equal(int32(1)))
		for _, got := range results {
			Expect(got).To(Equal(want))
		}
	})
})
