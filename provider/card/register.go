package card

import (
	"github.com/mekvam/paygate/provider"
)

func init() {
	provider.Register(provider.NameCard, New)
}
