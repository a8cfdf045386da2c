package pointcloud

import (
	"bufio"
	"fmt"
	"io"

	"github.com/golang/geo/r3"
)

// WritePCD writes every point of c as an ASCII PCD v0.7 cloud in mm.
func WritePCD(w io.Writer, c *Container) error {
	bw := bufio.NewWriter(w)
	n := c.Size()
	fmt.Fprintf(bw, "# .PCD v0.7 - Point Cloud Data file format\n")
	fmt.Fprintf(bw, "VERSION 0.7\n"+
		"FIELDS x y z\n"+
		"SIZE 4 4 4\n"+
		"TYPE F F F\n"+
		"COUNT 1 1 1\n"+
		"WIDTH %d\n"+
		"HEIGHT 1\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA ascii\n", n, n)
	var err error
	c.Iterate(func(_ int, p r3.Vector) bool {
		_, err = fmt.Fprintf(bw, "%.4f %.4f %.4f\n", p.X, p.Y, p.Z)
		return err == nil
	})
	if err != nil {
		return err
	}
	return bw.Flush()
}

// WriteASC writes every point of c as a CloudCompare-compatible .asc file
// with the cloud label as a fourth column.
func WriteASC(w io.Writer, c *Container) error {
	if c.Size() == 0 {
		return fmt.Errorf("no points to export")
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# Exported points\n")
	fmt.Fprintf(bw, "# Format: X Y Z Label\n")
	var err error
	c.Iterate(func(label int, p r3.Vector) bool {
		_, err = fmt.Fprintf(bw, "%.6f %.6f %.6f %d\n", p.X, p.Y, p.Z, label)
		return err == nil
	})
	if err != nil {
		return err
	}
	return bw.Flush()
}
