// Package dice parses chat roll commands, rolls dice and renders results.
package dice

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aiwuxian/tabletop/internal/models"
)

const (
	MaxCount = 20
	MinSides = 2
	MaxSides = 100

	// MaxModifier bounds |modifier| so totals stay well inside int range.
	MaxModifier = 1000
)

var (
	ErrTooManyDice        = errors.New("dice: too many dice")
	ErrSidesOutOfRange    = errors.New("dice: sides out of range")
	ErrModifierOutOfRange = errors.New("dice: modifier out of range")
)

// Notice 返回校验错误对应的系统提示文本
func Notice(err error) string {
	switch {
	case errors.Is(err, ErrTooManyDice):
		return fmt.Sprintf("Maximum %d dice per roll.", MaxCount)
	case errors.Is(err, ErrSidesOutOfRange):
		return fmt.Sprintf("Dice sides must be between %d and %d.", MinSides, MaxSides)
	case errors.Is(err, ErrModifierOutOfRange):
		return fmt.Sprintf("Dice modifier must be between -%d and %d.", MaxModifier, MaxModifier)
	}
	return err.Error()
}

// Source 随机源；IntN 返回 [0, n) 内的均匀整数
type Source interface {
	IntN(n int) int
}

// Request 一次投骰的参数
type Request struct {
	Count       int    `json:"count"`
	Sides       int    `json:"sides"`
	Modifier    int    `json:"modifier"`
	Description string `json:"description"`
}

var commandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^/roll (\d+)d(\d+)(?:\+(\d+))?(?:\s+(.+))?$`),
	regexp.MustCompile(`(?i)^/r (\d+)d(\d+)(?:\+(\d+))?(?:\s+(.+))?$`),
	regexp.MustCompile(`(?i)^(\d+)d(\d+)(?:\+(\d+))?(?:\s+(.+))?$`),
}

// Parse 解析聊天输入中的投骰指令；不匹配时返回 false
//
// The returned request is not validated; callers run Validate before rolling.
func Parse(text string) (Request, bool) {
	text = strings.TrimSpace(text)
	for _, pattern := range commandPatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		return Request{
			Count:       atoi(m[1]),
			Sides:       atoi(m[2]),
			Modifier:    atoi(m[3]),
			Description: strings.TrimSpace(m[4]),
		}, true
	}
	return Request{}, false
}

// atoi maps digit runs too large for int to a value that fails validation.
func atoi(s string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return v
}

// Validate 校验并规范化请求：数量不足 1 时补为 1
func Validate(req Request) (Request, error) {
	if req.Count < 1 {
		req.Count = 1
	}
	if req.Count > MaxCount {
		return req, ErrTooManyDice
	}
	if req.Sides < MinSides || req.Sides > MaxSides {
		return req, ErrSidesOutOfRange
	}
	if req.Modifier < -MaxModifier || req.Modifier > MaxModifier {
		return req, ErrModifierOutOfRange
	}
	return req, nil
}

// Roll 按请求投骰，结果按投掷顺序排列
func Roll(src Source, req Request) (models.DiceRoll, error) {
	req, err := Validate(req)
	if err != nil {
		return models.DiceRoll{}, err
	}

	results := make([]int, req.Count)
	sum := 0
	for i := range results {
		results[i] = rollDie(src, req.Sides)
		sum += results[i]
	}

	return models.DiceRoll{
		Count:       req.Count,
		Sides:       req.Sides,
		Modifier:    req.Modifier,
		Results:     results,
		Total:       sum + req.Modifier,
		Description: req.Description,
	}, nil
}

func rollDie(src Source, sides int) int {
	return src.IntN(sides) + 1
}

// Format 生成聊天中显示的结果文本
func Format(roll models.DiceRoll) string {
	var b strings.Builder

	mod := ""
	if roll.Modifier != 0 {
		mod = fmt.Sprintf("%+d", roll.Modifier)
	}

	if roll.Count == 1 && len(roll.Results) == 1 {
		fmt.Fprintf(&b, "d%d%s: [%d]", roll.Sides, mod, roll.Results[0])
	} else {
		parts := make([]string, len(roll.Results))
		for i, r := range roll.Results {
			parts[i] = strconv.Itoa(r)
		}
		fmt.Fprintf(&b, "%dd%d%s: [%s] = %d", roll.Count, roll.Sides, mod, strings.Join(parts, ", "), roll.Sum())
	}

	if roll.Modifier != 0 {
		fmt.Fprintf(&b, "%s = %d", mod, roll.Total)
	}
	if roll.Description != "" {
		fmt.Fprintf(&b, " (%s)", roll.Description)
	}
	return b.String()
}
