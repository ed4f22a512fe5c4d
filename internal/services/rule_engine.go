package services

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/aiwuxian/tabletop/internal/dice"
	"github.com/aiwuxian/tabletop/internal/models"
)

const (
	// 随机放置区域（画布坐标）
	spawnOrigin = 100
	spawnSpan   = 300
)

type RuleEngine struct {
	rng dice.Source
}

func NewRuleEngine(src dice.Source) *RuleEngine {
	if src == nil {
		seed := uint64(time.Now().UnixNano())
		src = rand.New(rand.NewPCG(seed, seed>>32))
	}
	return &RuleEngine{rng: src}
}

// RollD20 投D20骰子
func (re *RuleEngine) RollD20() int {
	return re.RollDie(20)
}

// RollDie 投任意骰子
func (re *RuleEngine) RollDie(sides int) int {
	return re.rng.IntN(sides) + 1
}

// Roll 校验并执行一次投骰
func (re *RuleEngine) Roll(req dice.Request) (models.DiceRoll, error) {
	return dice.Roll(re.rng, req)
}

// RandomColor 随机颜色 #rrggbb
func (re *RuleEngine) RandomColor() string {
	return fmt.Sprintf("#%06x", re.rng.IntN(0x1000000))
}

// RandomPosition 在默认区域内随机取一个位置
func (re *RuleEngine) RandomPosition() (float64, float64) {
	x := spawnOrigin + float64(re.rng.IntN(spawnSpan*100))/100
	y := spawnOrigin + float64(re.rng.IntN(spawnSpan*100))/100
	return x, y
}
