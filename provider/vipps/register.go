package vipps

import (
	"github.com/mekvam/paygate/provider"
)

func init() {
	provider.Register(provider.NameVipps, New)
}
