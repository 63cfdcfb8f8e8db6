// Package yuv exposes the pixel-format conversions the streaming pipeline
// needs. With cgo the conversions are thin declarations over libyuv; without
// cgo a software fallback keeps the rest of the pipeline usable.
package yuv

import "fmt"

// I420Image is one frame in planar YUV 4:2:0 layout: a full-resolution Y
// plane followed by quarter-resolution U and V planes, each described by a
// base buffer and a row stride.
type I420Image struct {
	Y, U, V                   []byte
	StrideY, StrideU, StrideV int
	Width, Height             int
}

// NV12Image is one frame in semi-planar YUV 4:2:0 layout: a full-resolution
// Y plane plus a single half-height plane of interleaved U/V samples.
type NV12Image struct {
	Y, UV             []byte
	StrideY, StrideUV int
	Width, Height     int
}

// ConversionError carries the untranslated status code returned by the
// native conversion. Callers relying on libyuv's documented error semantics
// see exactly what the library reported.
type ConversionError int

func (e ConversionError) Error() string {
	return fmt.Sprintf("yuv: conversion failed with status %d", int(e))
}

// NewI420 allocates an I420 frame with tightly packed planes for the given
// dimensions.
func NewI420(width, height int) *I420Image {
	chromaW := (width + 1) / 2
	chromaH := (height + 1) / 2
	return &I420Image{
		Y:       make([]byte, width*height),
		U:       make([]byte, chromaW*chromaH),
		V:       make([]byte, chromaW*chromaH),
		StrideY: width,
		StrideU: chromaW,
		StrideV: chromaW,
		Width:   width,
		Height:  height,
	}
}

// NewNV12 allocates an NV12 frame with tightly packed planes for the given
// dimensions.
func NewNV12(width, height int) *NV12Image {
	chromaW := (width + 1) / 2
	chromaH := (height + 1) / 2
	return &NV12Image{
		Y:        make([]byte, width*height),
		UV:       make([]byte, chromaW*2*chromaH),
		StrideY:  width,
		StrideUV: chromaW * 2,
		Width:    width,
		Height:   height,
	}
}
