// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	impute "github.com/arvados/lightning-impute"
)

func main() {
	impute.Main()
}
