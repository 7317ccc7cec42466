package dto

import (
	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/paper-exchange/internal/domain/models"
)

type BalanceRedisView struct {
	Free decimal.Decimal `json:"free"`
	Used decimal.Decimal `json:"used"`
}

func (b BalanceRedisView) ToDomain(asset string) models.AssetBalance {
	return models.AssetBalance{
		Asset: asset,
		Free:  b.Free,
		Used:  b.Used,
	}
}

func BalanceFromDomain(balance models.AssetBalance) BalanceRedisView {
	return BalanceRedisView{
		Free: balance.Free,
		Used: balance.Used,
	}
}
