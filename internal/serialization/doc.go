// Package serialization implements the .born checkpoint format and a
// SafeTensors writer.
//
// A .born file stores a named set of tensors plus a JSON header:
//
//	Format Structure (v2):
//	  0x00 [4 bytes: Magic "BORN"]
//	  0x04 [4 bytes: Version (uint32 LE)]
//	  0x08 [4 bytes: Flags (uint32 LE)]
//	  0x0C [4 bytes: Reserved]
//	  0x10 [8 bytes: Header Size (uint64 LE)]
//	  0x18 [8 bytes: Data Size (uint64 LE)]
//	  0x20 [32 bytes: SHA-256 of the data section]
//	  0x40 [Header: JSON metadata]
//	  [Tensor data: raw little-endian bytes, 64-byte aligned]
//
// Tensors are written in lexical name order, so the same state dictionary
// always produces the same data section and checksum.
//
// Example usage:
//
//	err := serialization.WriteFile("decoder.born", decoder.StateDict(), serialization.Header{
//	    ModelType: "adain.Decoder",
//	    Metadata:  map[string]string{"depth": "4"},
//	})
//
//	reader, err := serialization.NewBornReader("decoder.born")
//	defer reader.Close()
//	stateDict, err := reader.ReadStateDict()
package serialization
