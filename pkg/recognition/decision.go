package recognition

import (
	"strconv"
	"strings"

	"FaceRecDev/pkg/maths"

	"github.com/pkg/errors"
)

// DecisionRule 把网络输出转换为身份的规则
type DecisionRule int

const (
	// DecisionArgMax 取输出最大的单元
	DecisionArgMax DecisionRule = iota
	// DecisionThreshold 恰好一个输出超过阈值才接受，否则为未知
	DecisionThreshold
)

var ruleNames = [...]string{"argmax", "threshold"}

func (r DecisionRule) valid() bool { return r >= 0 && int(r) < len(ruleNames) }

func (r DecisionRule) String() string {
	if !r.valid() {
		return "DecisionRule(" + strconv.Itoa(int(r)) + ")"
	}
	return ruleNames[r]
}

func (r DecisionRule) MarshalText() ([]byte, error) {
	if !r.valid() {
		return nil, errors.Wrapf(maths.ErrInvalidArgument, "未知的判决规则 %d", int(r))
	}
	return []byte(ruleNames[r]), nil
}

func (r *DecisionRule) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for i, n := range ruleNames {
		if n == name {
			*r = DecisionRule(i)
			return nil
		}
	}
	return errors.Wrapf(maths.ErrInvalidArgument, "未知的判决规则 %q", text)
}

// Decision 一次识别的结果，未知身份时 Index 为 -1
type Decision struct {
	Index    int       `json:"index"`
	Identity string    `json:"identity"`
	Known    bool      `json:"known"`
	Outputs  []float64 `json:"outputs"`
}

// decide 按规则选出身份下标，-1 表示未知
func decide(rule DecisionRule, threshold float64, outputs *maths.Vector[float64]) int {
	switch rule {
	case DecisionThreshold:
		index := -1
		for i, v := range outputs.Raw() {
			if v > threshold {
				if index >= 0 {
					return -1
				}
				index = i
			}
		}
		return index
	default:
		return outputs.ArgMax()
	}
}
