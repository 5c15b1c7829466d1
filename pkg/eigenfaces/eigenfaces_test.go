package eigenfaces

import (
	"bytes"
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"FaceRecDev/pkg/maths"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// randomImages 生成 count 张长度为 pixels 的随机图像
func randomImages(seed uint64, count, pixels int) []*maths.Vector[float64] {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	images := make([]*maths.Vector[float64], count)
	for i := range images {
		img := maths.NewVector[float64](pixels)
		for j := 0; j < pixels; j++ {
			img.Set(j, rng.Float64())
		}
		images[i] = img
	}
	return images
}

func trainedModel(t *testing.T, count, pixels, k int) (*Model, []*maths.Vector[float64]) {
	t.Helper()
	images := randomImages(42, count, pixels)
	m := NewModel()
	for _, img := range images {
		require.NoError(t, m.AddImage(img))
	}
	require.NoError(t, m.CalculateEigenvalues())
	require.NoError(t, m.CalculateEigenfaces(k))
	return m, images
}

func TestFiveImagesOfHundredPixels(t *testing.T) {
	m, _ := trainedModel(t, 5, 100, 3)

	assert.Equal(t, 5, m.Eigenvalues().Len())
	faces := m.Eigenfaces()
	assert.Equal(t, 100, faces.Rows())
	assert.Equal(t, 3, faces.Cols())
	assert.Equal(t, 3, m.NumComponents())

	k, err := m.NumComponentsFor(1.0)
	require.NoError(t, err)
	assert.Equal(t, 5, k)
}

func TestEigenvaluesSortedByMagnitude(t *testing.T) {
	m, _ := trainedModel(t, 8, 30, 1)
	values := m.Eigenvalues().Data()
	for i := 1; i < len(values); i++ {
		assert.GreaterOrEqual(t, math.Abs(values[i-1]), math.Abs(values[i]))
	}
}

func TestSortEigenpairsKeepsTiesInOrder(t *testing.T) {
	values := maths.NewVectorFrom([]float64{1, -3, 3, 2, -2})
	// 每列记录原始位置
	vectors := maths.NewMatrixFrom(1, 5, []float64{0, 1, 2, 3, 4})

	sortEigenpairs(values, vectors)
	assert.Equal(t, []float64{-3, 3, 2, -2, 1}, values.Data())
	assert.Equal(t, []float64{1, 2, 3, 4, 0}, vectors.Row(0).Data())
}

func TestCalculateEigenvaluesFailureKeepsState(t *testing.T) {
	m, _ := trainedModel(t, 4, 20, 2)
	values := m.Eigenvalues()
	mean := m.MeanFace()
	faces := m.Eigenfaces()

	bad := maths.NewVector[float64](20)
	bad.Set(3, math.NaN())
	require.NoError(t, m.AddImage(bad))

	err := m.CalculateEigenvalues()
	require.Error(t, err)
	assert.True(t, errors.Is(err, maths.ErrConvergence))
	assert.True(t, values.Equal(m.Eigenvalues()))
	assert.True(t, mean.Equal(m.MeanFace()))
	assert.True(t, faces.Equal(m.Eigenfaces()))
	assert.Equal(t, 2, m.NumComponents())
}

func TestMeanFace(t *testing.T) {
	m := NewModel()
	require.NoError(t, m.AddImage(maths.NewVectorFrom([]float64{1, 2, 3})))
	require.NoError(t, m.AddImage(maths.NewVectorFrom([]float64{3, 4, 5})))
	require.NoError(t, m.CalculateEigenvalues())
	assert.Equal(t, []float64{2, 3, 4}, m.MeanFace().Data())
}

func TestEigenfacesSatisfyCovarianceRelation(t *testing.T) {
	// Xc·Xcᵗ·e = λ·e 对非零特征对成立
	m, images := trainedModel(t, 6, 20, 4)
	xc := maths.NewMatrix[float64](0, 0)
	mean := m.MeanFace()
	for _, img := range images {
		xc.AppendCol(img.Sub(mean))
	}
	faces := m.Eigenfaces()
	values := m.Eigenvalues()
	for k := 0; k < faces.Cols(); k++ {
		e := faces.Col(k)
		lhs := xc.MulVec(xc.MulTransVec(e))
		rhs := e.Scale(values.At(k))
		for i := 0; i < e.Len(); i++ {
			assert.InDelta(t, rhs.At(i), lhs.At(i), 1e-8)
		}
	}
}

func TestCalculateEigenfacesIsRepeatable(t *testing.T) {
	m, _ := trainedModel(t, 6, 40, 2)
	first := m.Eigenfaces()

	require.NoError(t, m.CalculateEigenfaces(5))
	assert.Equal(t, 5, m.NumComponents())

	require.NoError(t, m.CalculateEigenfaces(2))
	assert.True(t, first.Equal(m.Eigenfaces()))
}

func TestCalculateEigenfacesArguments(t *testing.T) {
	m := NewModel()
	err := m.CalculateEigenfaces(1)
	assert.True(t, errors.Is(err, maths.ErrInvalidArgument))

	m, _ = trainedModel(t, 4, 10, 1)
	assert.True(t, errors.Is(m.CalculateEigenfaces(0), maths.ErrInvalidArgument))
	assert.True(t, errors.Is(m.CalculateEigenfaces(5), maths.ErrInvalidArgument))
}

func TestCalculateEigenvaluesWithoutImages(t *testing.T) {
	err := NewModel().CalculateEigenvalues()
	assert.True(t, errors.Is(err, maths.ErrInvalidArgument))
}

func TestAddImageMismatch(t *testing.T) {
	m := NewModel()
	require.NoError(t, m.AddImage(maths.NewVector[float64](4)))
	err := m.AddImage(maths.NewVector[float64](5))
	assert.True(t, errors.Is(err, maths.ErrDimensionMismatch))
	assert.Equal(t, 1, m.NumImages())
}

func TestNumComponentsFor(t *testing.T) {
	m, _ := trainedModel(t, 10, 50, 1)
	values := m.Eigenvalues().Data()
	total := 0.0
	for _, v := range values {
		total += v
	}

	k, err := m.NumComponentsFor(values[0] / total)
	require.NoError(t, err)
	assert.Equal(t, 1, k)

	k, err = m.NumComponentsFor((values[0] + values[1]) / total * 0.999)
	require.NoError(t, err)
	assert.Equal(t, 2, k)

	_, err = m.NumComponentsFor(0)
	assert.True(t, errors.Is(err, maths.ErrInvalidArgument))
	_, err = m.NumComponentsFor(1.5)
	assert.True(t, errors.Is(err, maths.ErrInvalidArgument))
}

func TestProjectIsDeterministic(t *testing.T) {
	m, images := trainedModel(t, 5, 100, 3)
	probe := images[2].Clone()

	a, err := m.Project(probe)
	require.NoError(t, err)
	b, err := m.Project(probe)
	require.NoError(t, err)
	assert.Equal(t, 3, a.Len())
	assert.True(t, a.Equal(b))
	assert.True(t, probe.Equal(images[2]))

	_, err = m.Project(maths.NewVector[float64](99))
	assert.True(t, errors.Is(err, maths.ErrDimensionMismatch))
}

func TestProjectBeforeEigenfaces(t *testing.T) {
	m := NewModel()
	require.NoError(t, m.AddImage(maths.NewVector[float64](3)))
	_, err := m.Project(maths.NewVector[float64](3))
	assert.True(t, errors.Is(err, maths.ErrInvalidArgument))
}

func TestReconstructTrainingImage(t *testing.T) {
	// 5 张零均值化的图像秩为 4，4 个分量足以精确还原训练图像
	m, images := trainedModel(t, 5, 30, 4)
	features, err := m.Project(images[1])
	require.NoError(t, err)
	restored, err := m.Reconstruct(features)
	require.NoError(t, err)
	for i := 0; i < restored.Len(); i++ {
		assert.InDelta(t, images[1].At(i), restored.At(i), 1e-8)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m, images := trainedModel(t, 5, 100, 3)
	path := filepath.Join(t.TempDir(), "eigen.bin")
	require.NoError(t, m.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, m.MeanFace().Equal(loaded.MeanFace()))
	assert.True(t, m.Eigenvalues().Equal(loaded.Eigenvalues()))
	assert.True(t, m.Eigenvectors().Equal(loaded.Eigenvectors()))
	assert.True(t, m.Eigenfaces().Equal(loaded.Eigenfaces()))
	assert.Equal(t, 3, loaded.NumComponents())
	assert.Equal(t, 100, loaded.ImageSize())

	want, err := m.Project(images[0])
	require.NoError(t, err)
	got, err := loaded.Project(images[0])
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	err = loaded.CalculateEigenfaces(2)
	assert.True(t, errors.Is(err, maths.ErrInvalidArgument))
}

func TestLoadTruncated(t *testing.T) {
	m, _ := trainedModel(t, 4, 10, 2)
	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)

	_, err = NewModel().ReadFrom(bytes.NewReader(buf.Bytes()[:buf.Len()/2]))
	assert.True(t, errors.Is(err, maths.ErrIO))
}
