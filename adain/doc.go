// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package adain provides arbitrary style transfer with Adaptive Instance
// Normalization.
//
// # Overview
//
// A frozen VGG19 feature extractor encodes a content and a style image.
// AdaIN aligns the per-channel mean and standard deviation of the content
// features to those of the style features, and a trained decoder maps the
// aligned features back to an image.
//
// Decoders are trained with the stylize command:
//
//	stylize train -content coco/ -style wikiart/ -backbone vgg19.safetensors
//
// # Basic Usage
//
//	import "github.com/born-ml/stylize/adain"
//
//	func main() {
//	    session, err := adain.NewSession(adain.Options{
//	        Decoder:  "decoder.born",
//	        Backbone: "vgg19.safetensors",
//	        Size:     512,
//	    })
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    out, err := session.Stylize(content, style, 1.0)
//	    ...
//	}
//
// Alpha trades content for style: 0 reproduces the content features, 1
// applies the full style statistics.
package adain
