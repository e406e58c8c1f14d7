// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hybrid

import (
	"encoding/binary"
	"fmt"
)

// Token-exchange reply layout: one boolean byte (tokenCreated) followed
// by the token as a big-endian uint64. The token value is only
// meaningful when tokenCreated is set, but a placeholder is always
// written so the reply has a fixed shape.
const tokenReplySize = 1 + 8

func appendTokenReply(created bool, token HalToken) []byte {
	buf := make([]byte, tokenReplySize)
	if created {
		buf[0] = 1
	}
	binary.BigEndian.PutUint64(buf[1:], uint64(token))
	return buf
}

func parseTokenReply(b []byte) (created bool, token HalToken, err error) {
	if len(b) < tokenReplySize {
		return false, 0, fmt.Errorf("token reply too short: %d bytes", len(b))
	}
	return b[0] != 0, HalToken(binary.BigEndian.Uint64(b[1:tokenReplySize])), nil
}
