package vm_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"dyms/vm"
)

func run(t *testing.T, source string) (stdout string, err error) {
	t.Helper()
	var out bytes.Buffer
	_, err = vm.Interpret(source, vm.WithStdout(&out))
	return out.String(), err
}

func TestArithmeticAndPrint(t *testing.T) {
	out, err := run(t, `print 1 + 2 * 3;`)
	require.NoError(t, err)
	require.Equal(t, "7\n", out)
}

func TestStringConcatenation(t *testing.T) {
	out, err := run(t, `print "foo" + "bar";`)
	require.NoError(t, err)
	require.Equal(t, "foobar\n", out)
}

func TestGlobalsAndLocals(t *testing.T) {
	out, err := run(t, `
		var x = 10;
		{
			var y = 5;
			print x + y;
		}
		print x;
	`)
	require.NoError(t, err)
	require.Equal(t, "15\n10\n", out)
}

func TestIfElseAndWhile(t *testing.T) {
	out, err := run(t, `
		var i = 0;
		var sum = 0;
		while (i < 5) {
			sum = sum + i;
			i = i + 1;
		}
		if (sum > 5) {
			print "big";
		} else {
			print "small";
		}
		print sum;
	`)
	require.NoError(t, err)
	require.Equal(t, "big\n10\n", out)
}

func TestForLoop(t *testing.T) {
	out, err := run(t, `
		for (var i = 0; i < 3; i = i + 1) {
			print i;
		}
	`)
	require.NoError(t, err)
	require.Equal(t, "0\n1\n2\n", out)
}

func TestFunctionsAndClosures(t *testing.T) {
	out, err := run(t, `
		fun makeCounter() {
			var count = 0;
			fun increment() {
				count = count + 1;
				return count;
			}
			return increment;
		}
		var counter = makeCounter();
		print counter();
		print counter();
		print counter();
	`)
	require.NoError(t, err)
	require.Equal(t, "1\n2\n3\n", out)
}

func TestRecursion(t *testing.T) {
	out, err := run(t, `
		fun fib(n) {
			if (n < 2) return n;
			return fib(n - 1) + fib(n - 2);
		}
		print fib(10);
	`)
	require.NoError(t, err)
	require.Equal(t, "55\n", out)
}

func TestClassesAndMethods(t *testing.T) {
	out, err := run(t, `
		class Counter {
			init(start) {
				this.value = start;
			}
			increment() {
				this.value = this.value + 1;
				return this.value;
			}
		}
		var c = Counter(10);
		print c.increment();
		print c.increment();
	`)
	require.NoError(t, err)
	require.Equal(t, "11\n12\n", out)
}

func TestRuntimeErrorUndefinedVariable(t *testing.T) {
	_, err := run(t, `print nope;`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Undefined variable")
}

func TestRuntimeErrorTypeMismatch(t *testing.T) {
	_, err := run(t, `print 1 + "x";`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must be two numbers or two strings")
}

func TestCompileErrorsAreCollected(t *testing.T) {
	_, cerrs := vm.Compile(`
		var = 1;
		print ;
	`)
	require.NotEmpty(t, cerrs)
}

func TestWithInitialHeapStillRunsCorrectly(t *testing.T) {
	var out bytes.Buffer
	_, err := vm.Interpret(`print 1 + 1;`, vm.WithStdout(&out), vm.WithInitialHeap(64))
	require.NoError(t, err)
	require.Equal(t, "2\n", out.String())
}

func TestStressGCDoesNotCorruptState(t *testing.T) {
	var out bytes.Buffer
	_, err := vm.Interpret(`
		fun build(n) {
			if (n == 0) return "done";
			var s = "x" + "y";
			return build(n - 1);
		}
		print build(50);
	`, vm.WithStdout(&out), vm.WithStressGC())
	require.NoError(t, err)
	require.Equal(t, "done\n", out.String())
}
