package pricing

import "github.com/XaviersDev/Stories-Wall-App-TGBot/internal/models"

type Prices struct {
	Base          int
	Extended      int
	LargeFile     int
	FreeCreations int
}

var DefaultPrices = Prices{Base: 10, Extended: 15, LargeFile: 10, FreeCreations: 2}

type Input struct {
	PriorCreations int
	Privileged     bool
	Parts          int
	LargeFile      bool
}

type Quote struct {
	Base      bool
	Extended  bool
	LargeFile bool
	Total     int
}

func (q Quote) Free() bool {
	return q.Total == 0
}

// Calculate sums the add-ons that apply to in. Privileged users pay nothing.
func Calculate(in Input, prices Prices) Quote {
	if in.Privileged {
		return Quote{}
	}
	q := Quote{
		Base:      in.PriorCreations >= prices.FreeCreations,
		Extended:  in.Parts == models.MaxParts,
		LargeFile: in.LargeFile,
	}
	if q.Base {
		q.Total += prices.Base
	}
	if q.Extended {
		q.Total += prices.Extended
	}
	if q.LargeFile {
		q.Total += prices.LargeFile
	}
	return q
}

func FreeLeft(priorCreations int, prices Prices) int {
	return max(0, prices.FreeCreations-priorCreations)
}
