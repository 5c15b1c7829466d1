package dataProcess

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"strconv"

	"FaceRecDev/pkg/maths"

	"github.com/pkg/errors"
)

/*
该文件包含样本集合的封装
顺序只影响持久化和按下标切分，不影响训练正确性
*/

const (
	patternSetMagic   = "PSET"
	patternSetVersion = 1
)

// PatternSet 有序可变的样本集合
type PatternSet struct {
	patterns []*Pattern
}

// NewPatternSet 创建样本集合，传入的样本按顺序加入
func NewPatternSet(patterns ...*Pattern) (*PatternSet, error) {
	ps := &PatternSet{}
	for _, p := range patterns {
		if err := ps.Add(p); err != nil {
			return nil, err
		}
	}
	return ps, nil
}

// Add 追加样本，所有样本的输入/输出长度必须一致
func (ps *PatternSet) Add(p *Pattern) error {
	if p == nil || p.Input == nil || p.Output == nil {
		return errors.Wrap(maths.ErrInvalidArgument, "样本为空")
	}
	if len(ps.patterns) > 0 {
		first := ps.patterns[0]
		if p.Input.Len() != first.Input.Len() || p.Output.Len() != first.Output.Len() {
			return errors.Wrapf(maths.ErrDimensionMismatch, "样本尺寸 %d→%d 与集合 %d→%d 不一致",
				p.Input.Len(), p.Output.Len(), first.Input.Len(), first.Output.Len())
		}
	}
	ps.patterns = append(ps.patterns, p)
	return nil
}

func (ps *PatternSet) Len() int { return len(ps.patterns) }

func (ps *PatternSet) At(i int) *Pattern { return ps.patterns[i] }

// Patterns 返回样本切片的浅拷贝
func (ps *PatternSet) Patterns() []*Pattern {
	out := make([]*Pattern, len(ps.patterns))
	copy(out, ps.patterns)
	return out
}

// InputSize 空集合返回 0
func (ps *PatternSet) InputSize() int {
	if len(ps.patterns) == 0 {
		return 0
	}
	return ps.patterns[0].Input.Len()
}

// OutputSize 空集合返回 0
func (ps *PatternSet) OutputSize() int {
	if len(ps.patterns) == 0 {
		return 0
	}
	return ps.patterns[0].Output.Len()
}

// Clone 深拷贝整个集合
func (ps *PatternSet) Clone() *PatternSet {
	out := &PatternSet{patterns: make([]*Pattern, len(ps.patterns))}
	for i, p := range ps.patterns {
		out.patterns[i] = p.Clone()
	}
	return out
}

// Shuffle 使用调用方提供的带种子随机源打乱顺序，便于复现实验
func (ps *PatternSet) Shuffle(rnd *rand.Rand) {
	rnd.Shuffle(len(ps.patterns), func(i, j int) {
		ps.patterns[i], ps.patterns[j] = ps.patterns[j], ps.patterns[i]
	})
}

// Merge 将 other 的样本追加到末尾（共享样本对象）
func (ps *PatternSet) Merge(other *PatternSet) error {
	for _, p := range other.patterns {
		if err := ps.Add(p); err != nil {
			return err
		}
	}
	return nil
}

// SplitOptions 切分方式，二选一
type SplitOptions struct {
	// ByPercentage 各部分的百分比，总和必须为 100
	ByPercentage []float64
	// ByCount 各部分的样本数，总和必须等于集合大小
	ByCount []int
}

// Split 按顺序切分成互不相交的子集，保持原有顺序
// 按百分比切分时向下取整，余数归入最后一部分
func (ps *PatternSet) Split(opts SplitOptions) ([]*PatternSet, error) {
	var counts []int
	switch {
	case len(opts.ByPercentage) > 0 && len(opts.ByCount) > 0:
		return nil, errors.Wrap(maths.ErrInvalidArgument, "ByPercentage 与 ByCount 只能指定一个")
	case len(opts.ByPercentage) > 0:
		total := 0.0
		for _, p := range opts.ByPercentage {
			if p < 0 {
				return nil, errors.Wrapf(maths.ErrInvalidArgument, "百分比不能为负: %v", p)
			}
			total += p
		}
		if math.Abs(total-100) > 1e-9 {
			return nil, errors.Wrapf(maths.ErrInvalidArgument, "百分比总和为 %v, 应为 100", total)
		}
		counts = make([]int, len(opts.ByPercentage))
		assigned := 0
		for i, p := range opts.ByPercentage[:len(counts)-1] {
			counts[i] = int(math.Floor(p*float64(len(ps.patterns))/100 + 1e-9))
			assigned += counts[i]
		}
		counts[len(counts)-1] = len(ps.patterns) - assigned
	case len(opts.ByCount) > 0:
		total := 0
		for _, c := range opts.ByCount {
			if c < 0 {
				return nil, errors.Wrapf(maths.ErrInvalidArgument, "数量不能为负: %d", c)
			}
			total += c
		}
		if total != len(ps.patterns) {
			return nil, errors.Wrapf(maths.ErrInvalidArgument, "数量总和 %d 与样本数 %d 不一致", total, len(ps.patterns))
		}
		counts = opts.ByCount
	default:
		return nil, errors.Wrap(maths.ErrInvalidArgument, "未指定切分方式")
	}

	parts := make([]*PatternSet, len(counts))
	start := 0
	for i, c := range counts {
		parts[i] = &PatternSet{patterns: append([]*Pattern(nil), ps.patterns[start:start+c]...)}
		start += c
	}
	return parts, nil
}

// WriteTo 二进制格式: 文件头 + 8 字节样本数 + 每个样本的输入向量和输出向量
func (ps *PatternSet) WriteTo(w io.Writer) (int64, error) {
	cw := &maths.CountingWriter{W: w}
	if err := maths.WriteHeader(cw, patternSetMagic, patternSetVersion); err != nil {
		return cw.N, err
	}
	if err := binary.Write(cw, binary.LittleEndian, uint64(len(ps.patterns))); err != nil {
		return cw.N, err
	}
	for _, p := range ps.patterns {
		if _, err := p.Input.WriteTo(cw); err != nil {
			return cw.N, err
		}
		if _, err := p.Output.WriteTo(cw); err != nil {
			return cw.N, err
		}
	}
	return cw.N, nil
}

// ReadFrom 读取后替换集合内容
func (ps *PatternSet) ReadFrom(r io.Reader) (int64, error) {
	cr := &maths.CountingReader{R: r}
	if _, err := maths.ReadHeader(cr, patternSetMagic, patternSetVersion); err != nil {
		return cr.N, err
	}
	var count uint64
	if err := binary.Read(cr, binary.LittleEndian, &count); err != nil {
		return cr.N, errors.Wrapf(maths.ErrIO, "读取样本数失败: %v", err)
	}
	loaded := &PatternSet{}
	for i := uint64(0); i < count; i++ {
		p := &Pattern{Input: &maths.Vector[float64]{}, Output: &maths.Vector[float64]{}}
		if _, err := p.Input.ReadFrom(cr); err != nil {
			return cr.N, errors.WithMessagef(err, "第 %d 个样本", i)
		}
		if _, err := p.Output.ReadFrom(cr); err != nil {
			return cr.N, errors.WithMessagef(err, "第 %d 个样本", i)
		}
		if err := loaded.Add(p); err != nil {
			return cr.N, errors.Wrapf(maths.ErrIO, "第 %d 个样本尺寸不一致", i)
		}
	}
	ps.patterns = loaded.patterns
	return cr.N, nil
}

// Save 保存到文件
func (ps *PatternSet) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "无法创建样本文件 %s", path)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if _, err := ps.WriteTo(bw); err != nil {
		return errors.WithMessagef(err, "写入样本文件 %s 失败", path)
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrapf(err, "写入样本文件 %s 失败", path)
	}
	return nil
}

// LoadPatternSet 从文件载入
func LoadPatternSet(path string) (*PatternSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "无法打开样本文件 %s", path)
	}
	defer f.Close()

	ps := &PatternSet{}
	if _, err := ps.ReadFrom(bufio.NewReader(f)); err != nil {
		return nil, errors.WithMessagef(err, "载入样本文件 %s 失败", path)
	}
	return ps, nil
}

// ExportText 每个样本一行，输入分量用制表符分隔
// 多输出时最后一列是最大输出分量的下标（从 1 开始），单输出时是原始输出值
func (ps *PatternSet) ExportText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, p := range ps.patterns {
		for _, x := range p.Input.Raw() {
			bw.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
			bw.WriteByte('\t')
		}
		if p.Output.Len() == 1 {
			bw.WriteString(strconv.FormatFloat(p.Output.At(0), 'g', -1, 64))
		} else {
			bw.WriteString(strconv.Itoa(p.Output.ArgMax() + 1))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
