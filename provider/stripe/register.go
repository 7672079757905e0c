package stripe

import (
	"github.com/mekvam/paygate/provider"
)

func init() {
	provider.Register(provider.NameStripe, New)
}
