package tensor

import (
	"math"
	"testing"
)

// Test helpers

func assertEqualShape(t *testing.T, expected, actual Shape, msg string) {
	t.Helper()
	if !expected.Equal(actual) {
		t.Errorf("%s: expected shape %v, got %v", msg, expected, actual)
	}
}

// DType Tests

func TestDataTypeSize(t *testing.T) {
	tests := []struct {
		dtype DataType
		size  int
	}{
		{Float32, 4},
		{Float64, 8},
	}

	for _, tt := range tests {
		if got := tt.dtype.Size(); got != tt.size {
			t.Errorf("%s.Size() = %d, want %d", tt.dtype, got, tt.size)
		}
	}
}

func TestParseDataType(t *testing.T) {
	for _, name := range []string{"float32", "F32"} {
		dt, ok := ParseDataType(name)
		if !ok || dt != Float32 {
			t.Errorf("ParseDataType(%q) = %v, %v", name, dt, ok)
		}
	}
	if _, ok := ParseDataType("BF16"); ok {
		t.Error("ParseDataType(BF16) should fail")
	}
}

// Shape Tests

func TestShapeNumElements(t *testing.T) {
	tests := []struct {
		shape Shape
		want  int
	}{
		{Shape{}, 1},
		{Shape{5}, 5},
		{Shape{2, 3, 4, 5}, 120},
	}

	for _, tt := range tests {
		if got := tt.shape.NumElements(); got != tt.want {
			t.Errorf("%v.NumElements() = %d, want %d", tt.shape, got, tt.want)
		}
	}
}

func TestShapeValidate(t *testing.T) {
	if err := (Shape{1, 3, 4, 4}).Validate(); err != nil {
		t.Errorf("valid shape rejected: %v", err)
	}
	if err := (Shape{1, 0, 4}).Validate(); err == nil {
		t.Error("zero dimension should be rejected")
	}
}

func TestComputeStrides(t *testing.T) {
	strides := Shape{2, 3, 4, 5}.ComputeStrides()
	want := []int{60, 20, 5, 1}
	for i := range want {
		if strides[i] != want[i] {
			t.Errorf("stride[%d] = %d, want %d", i, strides[i], want[i])
		}
	}
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		a, b      Shape
		want      Shape
		broadcast bool
		wantErr   bool
	}{
		{Shape{3, 1}, Shape{3, 5}, Shape{3, 5}, true, false},
		{Shape{2, 8, 1, 1}, Shape{2, 8, 4, 4}, Shape{2, 8, 4, 4}, true, false},
		{Shape{1, 8, 1, 1}, Shape{2, 8, 4, 4}, Shape{2, 8, 4, 4}, true, false},
		{Shape{3, 5}, Shape{3, 5}, Shape{3, 5}, false, false},
		{Shape{5}, Shape{3, 5}, Shape{3, 5}, true, false},
		{Shape{3, 4}, Shape{3, 5}, nil, false, true},
	}

	for _, tt := range tests {
		got, broadcast, err := BroadcastShapes(tt.a, tt.b)
		if tt.wantErr {
			if err == nil {
				t.Errorf("BroadcastShapes(%v, %v) expected error", tt.a, tt.b)
			}
			continue
		}
		if err != nil {
			t.Errorf("BroadcastShapes(%v, %v) unexpected error: %v", tt.a, tt.b, err)
			continue
		}
		assertEqualShape(t, tt.want, got, "BroadcastShapes")
		if broadcast != tt.broadcast {
			t.Errorf("BroadcastShapes(%v, %v) broadcast = %v, want %v", tt.a, tt.b, broadcast, tt.broadcast)
		}
	}
}

func TestBroadcastStrides(t *testing.T) {
	strides := Shape{1, 8, 1, 1}.BroadcastStrides(Shape{2, 8, 4, 4})
	want := []int{0, 1, 0, 0}
	for i := range want {
		if strides[i] != want[i] {
			t.Errorf("stride[%d] = %d, want %d", i, strides[i], want[i])
		}
	}

	defer func() {
		if recover() == nil {
			t.Error("BroadcastStrides should panic on incompatible shapes")
		}
	}()
	Shape{3}.BroadcastStrides(Shape{4})
}

// RawTensor Tests

func TestRawTensorZeroCopy(t *testing.T) {
	raw, err := NewRaw(Shape{2, 3}, Float32, CPU)
	if err != nil {
		t.Fatal(err)
	}
	data := raw.AsFloat32()
	if len(data) != 6 {
		t.Errorf("AsFloat32 length = %d, want 6", len(data))
	}

	data[0] = 42
	if raw.AsFloat32()[0] != 42 {
		t.Error("AsFloat32 should return zero-copy slice")
	}
}

func TestRawTensorDTypeMismatchPanics(t *testing.T) {
	raw := MustNewRaw(Shape{2}, Float32, CPU)
	defer func() {
		if recover() == nil {
			t.Error("AsFloat64 on a float32 tensor should panic")
		}
	}()
	raw.AsFloat64()
}

func TestRawTensorCloneIsDeep(t *testing.T) {
	raw := MustNewRaw(Shape{4}, Float64, CPU)
	raw.AsFloat64()[1] = 7

	clone := raw.Clone()
	clone.AsFloat64()[1] = 9

	if raw.AsFloat64()[1] != 7 {
		t.Error("Clone must not share data with the original")
	}
}

func TestRawTensorView(t *testing.T) {
	raw := MustNewRaw(Shape{2, 6}, Float32, CPU)
	view, err := raw.View(Shape{3, 4})
	if err != nil {
		t.Fatal(err)
	}
	assertEqualShape(t, Shape{3, 4}, view.Shape(), "View")

	if _, err := raw.View(Shape{5}); err == nil {
		t.Error("View with a different element count should fail")
	}
}

func TestRawTensorIsFinite(t *testing.T) {
	raw := MustNewRaw(Shape{3}, Float32, CPU)
	if !raw.IsFinite() {
		t.Error("zero tensor should be finite")
	}
	raw.AsFloat32()[2] = float32(math.Inf(1))
	if raw.IsFinite() {
		t.Error("tensor with +Inf should not be finite")
	}

	raw64 := MustNewRaw(Shape{1}, Float64, CPU)
	raw64.AsFloat64()[0] = math.NaN()
	if raw64.IsFinite() {
		t.Error("tensor with NaN should not be finite")
	}
}
