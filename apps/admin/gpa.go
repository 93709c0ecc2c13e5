package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/schooldriver/schooldriver/core/academic"
)

// printReport prints the same figures the portals show for the student.
func (cli *commandLine) printReport(studentID, scope string) error {
	sc, err := academic.ParseScope(scope)
	if err != nil {
		return err
	}
	rpt, err := cli.acadSvc.Report(context.Background(), studentID, sc)
	if err != nil {
		return err
	}

	year := "all years"
	if rpt.SchoolYear != nil {
		year = rpt.SchoolYear.Name
	}
	fmt.Fprintf(cli.out, "%s (%s) - %s\n\n", rpt.Student.FullName(), rpt.Student.StudentNumber, year)

	w := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COURSE\tCODE\tTEACHER\t%\tGRADE\tPOINTS")
	for _, c := range rpt.Courses {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%s\t%.1f\n", c.Name, c.Code, c.Teacher, c.Percentage, c.Letter, c.GradePoint)
	}
	if err = w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(cli.out, "\nAverage: %.1f%%  GPA: %.2f\n", rpt.Summary.AveragePercentage, rpt.Summary.GPA)
	fmt.Fprintf(cli.out, "Weighted average: %.1f%%  Weighted GPA: %.2f\n", rpt.WeightedSummary.AveragePercentage, rpt.WeightedSummary.GPA)
	return nil
}
