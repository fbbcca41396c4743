// Package gocv decodes videos in-process through OpenCV. It needs the OpenCV
// shared libraries at build time and is only compiled with -tags gocv; the
// worker selects it with DECODER=gocv.
package gocv
