// Package loader reads pretrained weights from SafeTensors files.
//
// Tensors are loaded lazily by name. F32 and F64 entries are read as is;
// F16 and BF16 entries are widened on load, so half-precision exports of the
// VGG backbone can be used without a conversion step.
//
// Example:
//
//	r, err := loader.NewSafeTensorsReader("vgg19.safetensors")
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//
//	w, err := r.LoadTensorAs("features.0.weight", tensor.Float32)
package loader
