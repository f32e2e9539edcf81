// Copyright 2025 James Ross
// Package blobstore implements the pipeline's object-storage capability
// (put/get/exists/delete/copy/move/list/presigned URL) and the stage-folder
// path convention every worker moves artifacts through.
package blobstore

import (
	"fmt"
	"path"
	"strings"
)

// Folder is one of the stage directories a blob lives under.
type Folder string

const (
	FolderIncoming     Folder = "incoming"
	FolderArchived     Folder = "archived"
	FolderPreprocessed Folder = "preprocessed"
	FolderProcessed    Folder = "processed"
	FolderManualReview Folder = "manual-review"
	FolderFailed       Folder = "failed"
)

// Incoming returns the path a freshly uploaded file lives at.
func Incoming(batchID, imageID, ext string) string {
	return fmt.Sprintf("%s/%s/%s%s", FolderIncoming, batchID, imageID, ext)
}

// Archived returns the path an original is moved to once accepted into the
// pipeline.
func Archived(batchID, imageID, ext string) string {
	return fmt.Sprintf("%s/%s/%s%s", FolderArchived, batchID, imageID, ext)
}

// Preprocessed returns the path of the normalised artifact, suffixed
// "_norm" ahead of the extension.
func Preprocessed(batchID, imageID, ext string) string {
	return fmt.Sprintf("%s/%s/%s_norm%s", FolderPreprocessed, batchID, imageID, ext)
}

// Processed returns the terminal-success resting place of an artifact.
func Processed(batchID, imageID, ext string) string {
	return fmt.Sprintf("%s/%s/%s%s", FolderProcessed, batchID, imageID, ext)
}

// Failed returns the terminal-failure resting place of an artifact.
func Failed(batchID, imageID, ext string) string {
	return fmt.Sprintf("%s/%s/%s%s", FolderFailed, batchID, imageID, ext)
}

// ManualReview returns the path used while an image awaits human review.
func ManualReview(batchID, imageID, ext string) string {
	return fmt.Sprintf("%s/%s/%s%s", FolderManualReview, batchID, imageID, ext)
}

// GetExtension returns the file extension (with leading dot) of p.
func GetExtension(p string) string {
	return path.Ext(p)
}

// GetFolder returns the top-level stage folder a path belongs to.
func GetFolder(p string) Folder {
	parts := strings.SplitN(p, "/", 2)
	if len(parts) == 0 {
		return ""
	}
	return Folder(parts[0])
}

// ChangeFolder rewrites the leading stage segment of p to newFolder,
// leaving the rest of the path (batch/image segments) untouched.
func ChangeFolder(p string, newFolder Folder) string {
	parts := strings.SplitN(p, "/", 2)
	if len(parts) != 2 {
		return p
	}
	return string(newFolder) + "/" + parts[1]
}

// ExtractBatchAndImageID parses a stage path of the form
// "<folder>/<batch_id>/<image_id>[_norm]<ext>" back into its components.
func ExtractBatchAndImageID(p string) (batchID, imageID string, ok bool) {
	parts := strings.SplitN(p, "/", 3)
	if len(parts) != 3 {
		return "", "", false
	}
	batchID = parts[1]
	filename := parts[2]
	ext := path.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	stem = strings.TrimSuffix(stem, "_norm")
	if stem == "" {
		return "", "", false
	}
	return batchID, stem, true
}
