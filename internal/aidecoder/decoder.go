// Copyright 2025 James Ross
// Package aidecoder implements the remote AI vision decoder capability used
// by the fallback and retry workers: a best-effort, non-deterministic
// barcode reader invoked when the local scanner comes up empty.
package aidecoder

import "context"

// Reading is one barcode candidate returned by the model.
type Reading struct {
	Code            string  `json:"code"`
	SymbologyGuess  string  `json:"symbologyGuess"`
	Confidence      float64 `json:"confidence"`
}

// Result is the full response to one decode call.
type Result struct {
	Readings []Reading
	Tokens   int
}

// Decoder is the capability the fallback/retry workers depend on.
type Decoder interface {
	Decode(ctx context.Context, image []byte, mimeType string) (Result, error)
}

// extractionPrompt is the exact instruction given to the model, carried
// over verbatim from original_source/src/llm/gemini.py's
// BARCODE_EXTRACTION_PROMPT so prompt-tuned behaviour is preserved.
const extractionPrompt = `
You are a vision model specialized in reading barcodes from images.

Task:
Analyze the product image and extract any visible *linear* barcodes and their numeric codes.

Target symbologies:
- EAN-13 (13 digits, commonly used in Europe)
- EAN-8 (8 digits, for small products)
- UPC-A (12 digits, commonly used in US/Canada)
- UPC-E (6-8 digits, compressed UPC)

Processing instructions:
1. Use your vision capabilities to:
   - Locate all barcode regions in the image (even if rotated or at an angle).
   - Zoom into each barcode area to clearly see the digits printed directly under or above the bars.
2. Perform OCR on the digits that belong to the barcode itself.
   - Ignore any surrounding packaging text, prices, dates, or other numbers not attached to a barcode.
3. Validate each candidate code:
   - Make sure the length matches one of the target symbologies.
   - Apply the correct checksum rule for that symbology (EAN / UPC check digit).
   - Only keep codes where the checksum is valid and every digit is clearly readable.
4. Confidence:
   - Estimate a confidence score between 0.0 and 1.0 based on clarity of the digits and your certainty.
   - Prefer not returning a barcode at all rather than guessing unclear digits.
5. De-duplication:
   - If the same barcode appears multiple times in the image, return it only once with the highest confidence.

IMPORTANT:
- Do NOT guess or invent digits.
- If any digit is unclear, blurred, cut off, or fails checksum validation, do NOT return that code.
- Only return barcodes you can clearly read AND that pass checksum validation.

Output format:
- Return ONLY valid JSON, with no extra text, comments, or markdown.
- Use double quotes for all JSON strings.
- The top-level value MUST be a JSON array.
- Each detected barcode MUST follow this EXACT object schema:

[
  {
    "code": "1234567890123",
    "symbologyGuess": "EAN-13",
    "confidence": 0.95
  }
]

Rules:
- "symbologyGuess" MUST be one of: "EAN-13", "EAN-8", "UPC-A", "UPC-E".
- "confidence" MUST be a number between 0.0 and 1.0.

If no valid barcodes are found (or all candidates fail checksum / are unclear), return an empty array:

[]
`
