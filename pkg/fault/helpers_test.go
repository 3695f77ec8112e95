package fault_test

import (
	"crypto"

	. "github.com/onsi/gomega"

	"github.com/papercomputeco/faultline/pkg/identity"
)

func mustAlg(name string) crypto.Hash {
	alg, err := identity.ParseAlgorithm(name)
	Expect(err).NotTo(HaveOccurred())
	return alg
}
