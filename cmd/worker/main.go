/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package main

import (
	"fmt"

	"github.com/AMD-AIG-AIMA/AVS/pkg/server"
)

func main() {
	s, err := server.NewWorkerServer()
	if err != nil {
		fmt.Println("failed to new worker, err: ", err.Error())
		return
	}
	s.Start()
}
