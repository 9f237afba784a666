package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Fingerprint 计算内容的SHA-256摘要（hex编码）
//
// 摘要只取决于字节内容，与文件名、路径无关，
// 相同内容在不同路径下得到相同指纹，这是去重的依据。
func Fingerprint(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to read content: %v", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func FingerprintFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %v", path, err)
	}
	defer f.Close()
	return Fingerprint(f)
}

func FingerprintBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
