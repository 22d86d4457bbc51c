// Copyright (C) The DECENT Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import "github.com/RudRho/DECENT"

func main() {
	decent.Main()
}
