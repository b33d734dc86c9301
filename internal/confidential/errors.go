package confidential

import "errors"

// Access errors returned by Box.Get.
var (
	ErrNotInitialized   = errors.New("confidential value not initialized")
	ErrDecryptionFailed = errors.New("confidential value decryption failed")
)
